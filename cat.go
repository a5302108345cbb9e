// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat ARCHIVE NAME...",
	Short: "Write members to standard output",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadFile(args[0])
		if err != nil {
			return err
		}
		for _, name := range args[1:] {
			f := a.Find(name)
			if f == nil {
				return fmt.Errorf("%s: %q: %w", args[0], name, fs.ErrNotExist)
			}
			data, err := f.Data()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
