package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runLatest(cmd *cobra.Command, args []string) error {
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var pointers []*models.LatestPointer
	if len(args) == 1 {
		identity, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid identity %q: %w", args[0], err)
		}
		p, err := a.svcs.Query.ResolveLatest(cmd.Context(), identity)
		if err != nil {
			return err
		}
		pointers = append(pointers, p)
	} else {
		pointers, err = a.latest.List(cmd.Context(), listLimit, listOffset)
		if err != nil {
			return err
		}
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), pointers)
	}
	return printPointers(cmd.OutOrStdout(), pointers)
}

func printPointers(w io.Writer, pointers []*models.LatestPointer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tDOCUMENT\tVERSION\tKIND\tSTATE\tTITLE")
	for _, p := range pointers {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", p.Identity, p.DocumentID, p.Version, p.Kind, p.State, p.Title)
	}
	return tw.Flush()
}

func runTree(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", args[0])
	}
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.svcs.Query.RenderTree(cmd.Context(), id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), view)
	}
	printTree(cmd.OutOrStdout(), view, 0)
	return nil
}

// printTree writes one line per node, indented by depth.
func printTree(w io.Writer, view *models.TreeView, depth int) {
	label := view.Title
	if view.RenderedVersion != "" {
		label = fmt.Sprintf("%s [%s %s]", label, view.Kind, view.RenderedVersion)
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label)
	for _, child := range view.Children {
		printTree(w, child, depth+1)
	}
}

func runRepublish(cmd *cobra.Command, args []string) error {
	exclude, err := parseIdentities(republishSkip)
	if err != nil {
		return err
	}
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.svcs.Republisher.Republish(cmd.Context(), &archiveSvc.RepublishRequest{
		OldDocumentID: republishOld,
		NewDocumentID: republishNew,
		Submitter:     "archivectl",
		Exclude:       exclude,
	})
	if result != nil {
		out := cmd.OutOrStdout()
		for _, root := range result.Roots {
			fmt.Fprintf(out, "republished %s as document %d\n", root.Ident(), root.ID)
		}
		for _, identity := range result.Skipped {
			fmt.Fprintf(out, "skipped %s\n", identity)
		}
	}
	return err
}

func parseIdentities(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid identity %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
