package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	models "archive/internal/domain/models/archive"
	service "archive/internal/service/archive"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// documentRef names a revision either by id or by identity@version.
type documentRef struct {
	id       int64
	identity uuid.UUID
	version  models.Version
}

func parseDocumentRef(s string) (documentRef, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id <= 0 {
			return documentRef{}, fmt.Errorf("invalid document id %q", s)
		}
		return documentRef{id: id}, nil
	}
	identStr, versionStr, ok := strings.Cut(s, "@")
	if !ok {
		return documentRef{}, fmt.Errorf("expected a document id or identity@version, got %q", s)
	}
	identity, err := uuid.Parse(identStr)
	if err != nil {
		return documentRef{}, fmt.Errorf("invalid identity %q: %w", identStr, err)
	}
	version, err := models.ParseVersion(versionStr)
	if err != nil {
		return documentRef{}, err
	}
	return documentRef{identity: identity, version: version}, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	ref, err := parseDocumentRef(args[0])
	if err != nil {
		return err
	}
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	id := ref.id
	if id == 0 {
		doc, err := a.docs.GetByIdentityVersion(cmd.Context(), ref.identity, ref.version)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}
		id = doc.ID
	}

	bundle, err := a.svcs.Dump.Export(cmd.Context(), id)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if dumpOutput != "" {
		f, err := os.Create(dumpOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", dumpOutput, err)
		}
		defer f.Close()
		out = f
	}
	return service.WriteBundle(out, bundle)
}

func runRestore(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	bundle, err := service.ReadBundle(f)
	if err != nil {
		return err
	}

	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.svcs.Dump.Restore(cmd.Context(), bundle)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %s: %d documents, %d nodes, %d rows already present\n",
		bundle.Root, result.Documents, result.Nodes, result.Skipped)
	return nil
}
