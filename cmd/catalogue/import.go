package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/sliceutil"
	"github.com/garyellow/unibot-go/internal/storage"
)

// record is one university entry of an import file.
type record struct {
	Name      string `yaml:"name" validate:"required"`
	City      string `yaml:"city" validate:"required"`
	Score     int    `yaml:"score" validate:"gte=0"`
	Link      string `yaml:"link"`
	Specialty string `yaml:"specialty" validate:"required,tokenfit"`
}

// importFile is the top-level YAML document.
type importFile struct {
	Universities []record `yaml:"universities" validate:"required,min=1,dive"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace the catalogue with the records in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dbPath, log, err := loadEnv(cmd)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()

		universities, err := parseRecords(f)
		if err != nil {
			return err
		}
		if unique := dedupeRecords(universities); len(unique) < len(universities) {
			log.WithField("dropped", len(universities)-len(unique)).
				Warn("Duplicate university entries dropped, first occurrence kept")
			universities = unique
		}

		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		if err := importUniversities(cmd.Context(), dbPath, cfg.Catalogue.LocalCity, universities); err != nil {
			return err
		}

		log.WithField("path", dbPath).
			WithField("universities", len(universities)).
			Info("Catalogue imported")
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d universities into %s\n", len(universities), dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// parseRecords decodes and validates an import file. Every invalid record
// is reported, not just the first.
func parseRecords(r io.Reader) ([]storage.University, error) {
	var doc importFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("import file is empty")
		}
		return nil, fmt.Errorf("decode import file: %w", err)
	}

	if err := newValidator().Struct(doc); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("validate import file: %w", err)
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			if fe.Tag() == "tokenfit" {
				name := normalize(fmt.Sprint(fe.Value()))
				msgs = append(msgs, fmt.Sprintf("%s: %q is %d bytes, at most %d fit a button",
					fe.Namespace(), name, len(name), catalogue.MaxSpecialtyBytes))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return nil, fmt.Errorf("invalid import file:\n  %s", strings.Join(msgs, "\n  "))
	}

	universities := make([]storage.University, 0, len(doc.Universities))
	for _, rec := range doc.Universities {
		universities = append(universities, storage.University{
			Name:         normalize(rec.Name),
			City:         normalize(rec.City),
			PassingScore: rec.Score,
			Link:         strings.TrimSpace(rec.Link),
			Specialty:    normalize(rec.Specialty),
		})
	}
	return universities, nil
}

// newValidator returns a validator with the import-specific rules.
// tokenfit checks the normalized specialty against the callback token limit,
// counting bytes rather than runes.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tokenfit", func(fl validator.FieldLevel) bool {
		return catalogue.SpecialtyFits(normalize(fl.Field().String()))
	})
	return v
}

// dedupeRecords keeps the first record of each (specialty, name) pair.
func dedupeRecords(universities []storage.University) []storage.University {
	return sliceutil.Deduplicate(universities, func(u storage.University) [2]string {
		return [2]string{u.Specialty, u.Name}
	})
}

// normalize trims s and converts it to NFC so menu tokens compare equal
// regardless of how the source file composed its Cyrillic letters.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func importUniversities(ctx context.Context, dbPath, localCity string, universities []storage.University) error {
	db, err := storage.New(ctx, dbPath, localCity)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.ReplaceUniversities(ctx, universities); err != nil {
		return fmt.Errorf("replace universities: %w", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		return fmt.Errorf("checkpoint database: %w", err)
	}
	return nil
}
