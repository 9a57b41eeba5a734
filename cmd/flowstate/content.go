package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowstate-go/internal/app"
	"flowstate-go/internal/model"
)

// content command
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Index locations inside attachments",
}

var contentAddCmd = &cobra.Command{
	Use:   "add ATTACHMENT_ID",
	Short: "Record a location inside an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attachmentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		locationType, _ := cmd.Flags().GetString("type")
		start, _ := cmd.Flags().GetString("start")

		in := model.NewContentLocation{
			AttachmentID:  attachmentID,
			Description:   description,
			Category:      optionalString(cmd, "category"),
			LocationType:  locationType,
			StartLocation: start,
			EndLocation:   optionalString(cmd, "end"),
			Snippet:       optionalString(cmd, "snippet"),
			ProblemID:     optionalInt64(cmd, "problem"),
			SolutionID:    optionalInt64(cmd, "solution"),
			LearningID:    optionalInt64(cmd, "learning"),
			ComponentID:   optionalInt64(cmd, "component"),
		}

		return withApp("ContentAdd", func(a *app.FlowApp) error {
			loc, err := a.Content().AddLocation(in)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded location #%d in attachment #%d\n", loc.ID, loc.AttachmentID)
			return nil
		})
	},
}

var contentListCmd = &cobra.Command{
	Use:   "list ATTACHMENT_ID",
	Short: "List the locations recorded for an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attachmentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp("ContentList", func(a *app.FlowApp) error {
			locations, err := a.Content().ListLocations(attachmentID)
			if err != nil {
				return err
			}
			if len(locations) == 0 {
				fmt.Println("No locations recorded.")
				return nil
			}
			for _, loc := range locations {
				fmt.Printf("#%-5d  %-10s  %s-%s  %s\n", loc.ID, loc.LocationType, loc.StartLocation, orDash(loc.EndLocation), loc.Description)
			}
			return nil
		})
	},
}

var contentRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a content location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp("ContentRemove", func(a *app.FlowApp) error {
			if err := a.Content().DeleteLocation(id); err != nil {
				return err
			}
			fmt.Printf("Deleted location #%d\n", id)
			return nil
		})
	},
}

var contentSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Search descriptions and snippets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileTypes, _ := cmd.Flags().GetStringSlice("type")
		limit, _ := cmd.Flags().GetInt("limit")

		q := model.ContentQuery{
			Text:      args[0],
			ProjectID: optionalInt64(cmd, "project"),
			FileTypes: fileTypes,
			Limit:     limit,
		}
		return withApp("ContentSearch", func(a *app.FlowApp) error {
			matches, err := a.Content().Search(q)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			width := terminalWidth()
			for _, m := range matches {
				line := fmt.Sprintf("%s  %s %s  %s", m.FileName, m.Location.LocationType, m.Location.StartLocation, m.Location.Description)
				fmt.Println(truncate(line, width))
				if m.Location.Snippet != nil {
					fmt.Println("    " + truncate(*m.Location.Snippet, width-4))
				}
			}
			return nil
		})
	},
}

// extraction command
var extractionCmd = &cobra.Command{
	Use:   "extraction",
	Short: "Track records derived from attachments",
}

var extractionAddCmd = &cobra.Command{
	Use:   "add ATTACHMENT_ID",
	Short: "Record an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attachmentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		recordType, _ := cmd.Flags().GetString("record-type")
		recordID, _ := cmd.Flags().GetInt64("record-id")

		in := model.NewExtraction{
			AttachmentID:   attachmentID,
			RecordType:     recordType,
			RecordID:       recordID,
			SourceLocation: optionalString(cmd, "location"),
			SourceSnippet:  optionalString(cmd, "snippet"),
			Confidence:     optionalFloat64(cmd, "confidence"),
		}
		return withApp("ExtractionAdd", func(a *app.FlowApp) error {
			e, err := a.Content().RecordExtraction(in)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded extraction #%d (%s #%d)\n", e.ID, e.RecordType, e.RecordID)
			return nil
		})
	},
}

var extractionReviewCmd = &cobra.Command{
	Use:   "review ID",
	Short: "Approve or reject an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		approve, _ := cmd.Flags().GetBool("approve")
		reject, _ := cmd.Flags().GetBool("reject")
		if approve && reject {
			return fmt.Errorf("--approve and --reject are mutually exclusive")
		}

		var approved *bool
		switch {
		case approve:
			approved = &approve
		case reject:
			no := false
			approved = &no
		}

		return withApp("ExtractionReview", func(a *app.FlowApp) error {
			e, err := a.Content().ReviewExtraction(id, true, approved)
			if err != nil {
				return err
			}
			fmt.Printf("Reviewed extraction #%d: %s\n", e.ID, decision(e.UserApproved))
			return nil
		})
	},
}

var extractionListCmd = &cobra.Command{
	Use:   "list ATTACHMENT_ID",
	Short: "List extractions of an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attachmentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		pending, _ := cmd.Flags().GetBool("pending")

		return withApp("ExtractionList", func(a *app.FlowApp) error {
			extractions, err := a.Content().ListExtractions(attachmentID, pending)
			if err != nil {
				return err
			}
			if len(extractions) == 0 {
				fmt.Println("No extractions.")
				return nil
			}
			for _, e := range extractions {
				confidence := "-"
				if e.Confidence != nil {
					confidence = fmt.Sprintf("%.2f", *e.Confidence)
				}
				status := "pending"
				if e.UserReviewed {
					status = decision(e.UserApproved)
				}
				fmt.Printf("#%-5d  %-10s #%-5d  %-5s  %-9s  %s\n", e.ID, e.RecordType, e.RecordID, confidence, status, orDash(e.SourceLocation))
			}
			return nil
		})
	},
}

var extractionRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp("ExtractionRemove", func(a *app.FlowApp) error {
			if err := a.Content().DeleteExtraction(id); err != nil {
				return err
			}
			fmt.Printf("Deleted extraction #%d\n", id)
			return nil
		})
	},
}

func decision(approved *bool) string {
	switch {
	case approved == nil:
		return "undecided"
	case *approved:
		return "approved"
	default:
		return "rejected"
	}
}

func init() {
	contentCmd.AddCommand(contentAddCmd)
	contentAddCmd.Flags().StringP("description", "d", "", "What is at this location")
	contentAddCmd.Flags().String("type", "page", "Location type (page, line_range, byte_offset, ...)")
	contentAddCmd.Flags().String("start", "", "Start location")
	contentAddCmd.Flags().String("end", "", "End location")
	contentAddCmd.Flags().String("snippet", "", "Excerpt")
	contentAddCmd.Flags().String("category", "", "Category")
	contentAddCmd.Flags().Int64("problem", 0, "Related problem ID")
	contentAddCmd.Flags().Int64("solution", 0, "Related solution ID")
	contentAddCmd.Flags().Int64("learning", 0, "Related learning ID")
	contentAddCmd.Flags().Int64("component", 0, "Related component ID")
	contentAddCmd.MarkFlagRequired("description")
	contentAddCmd.MarkFlagRequired("start")

	contentCmd.AddCommand(contentListCmd)
	contentCmd.AddCommand(contentRmCmd)
	contentCmd.AddCommand(contentSearchCmd)
	contentSearchCmd.Flags().Int64P("project", "p", 0, "Only this project")
	contentSearchCmd.Flags().StringSlice("type", nil, "Only these file types (e.g. pdf)")
	contentSearchCmd.Flags().IntP("limit", "n", 10, "Maximum number of matches")

	extractionCmd.AddCommand(extractionAddCmd)
	extractionAddCmd.Flags().String("record-type", "", "Derived record type (problem, learning, solution, ...)")
	extractionAddCmd.Flags().Int64("record-id", 0, "Derived record ID")
	extractionAddCmd.Flags().String("location", "", "Where in the attachment it was found")
	extractionAddCmd.Flags().String("snippet", "", "Source excerpt")
	extractionAddCmd.Flags().Float64("confidence", 0, "Confidence in [0,1]")
	extractionAddCmd.MarkFlagRequired("record-type")
	extractionAddCmd.MarkFlagRequired("record-id")

	extractionCmd.AddCommand(extractionReviewCmd)
	extractionReviewCmd.Flags().Bool("approve", false, "Approve the extraction")
	extractionReviewCmd.Flags().Bool("reject", false, "Reject the extraction")

	extractionCmd.AddCommand(extractionListCmd)
	extractionListCmd.Flags().Bool("pending", false, "Only unreviewed extractions")

	extractionCmd.AddCommand(extractionRmCmd)
}
