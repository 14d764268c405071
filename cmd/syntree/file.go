package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helixml/syntree"
	"github.com/helixml/syntree/infrastructure/parsing"
)

func fileCmd() *cobra.Command {
	var (
		lang      string
		namedOnly bool
		withText  bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Print the syntax tree of one file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := syntree.ParseFile(cmd.Context(), args[0], lang, parsing.TreeOptions{
				NamedOnly:   namedOnly,
				IncludeText: withText,
			})
			if err != nil {
				return err
			}
			return writeOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(root)
			})
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Language (default: detected from the path)")
	cmd.Flags().BoolVar(&namedOnly, "named-only", false, "Skip anonymous nodes such as punctuation")
	cmd.Flags().BoolVar(&withText, "text", false, "Include the source text of every node")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

func nodeHashCmd() *cobra.Command {
	var (
		lang   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "node-hash <path> <node-type>",
		Short: "Hash the shape of every node of a type",
		Long: `Hash the shape of every node of the given type and write one JSON line
per node: {"sha512", "file", "x1", "y1"}. The hash covers the type and
named flag of every node of the subtree, so nodes differing only in
identifiers or literals hash alike.

When path is a directory every file with a known language is hashed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := hashTargets(args[0], lang)
			if err != nil {
				return err
			}
			return writeOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
				enc := json.NewEncoder(w)
				for _, file := range files {
					hashes, err := hashFile(cmd.Context(), file, args[1], lang)
					if err != nil {
						return err
					}
					for _, h := range hashes {
						if err := enc.Encode(h); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Language (default: detected from each path)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

// hashTargets lists path itself, or the regular files below it.
func hashTargets(path, lang string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	languages := parsing.DefaultLanguages()
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if lang == "" {
			if _, ok := languages.ByPath(filepath.ToSlash(p)); !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func hashFile(ctx context.Context, path, nodeType, lang string) ([]parsing.NodeHash, error) {
	hashes, err := syntree.HashNodes(ctx, path, nodeType, lang)
	if errors.Is(err, syntree.ErrUnknownLanguage) {
		return nil, fmt.Errorf("%s: %w (use --lang)", path, err)
	}
	return hashes, err
}

// writeOutput runs write against the file at path, or stdout when path is
// empty.
func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
