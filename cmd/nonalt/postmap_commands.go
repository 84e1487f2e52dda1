package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newPostMapCommand(ctx *commandContext) *cobra.Command {
	postMapCmd := &cobra.Command{
		Use:   "postmap",
		Short: "Inspect the post-to-images map used for tagging",
	}

	postMapCmd.AddCommand(newPostMapListCommand(ctx))
	postMapCmd.AddCommand(newPostMapClearCommand(ctx))
	return postMapCmd
}

func newPostMapListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded posts and their resolved images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.LoadPostImages()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Posts)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Posts) == 0 {
					fmt.Fprintln(stdout, "Post map is empty")
					return nil
				}
				postURLs := make([]string, 0, len(resp.Posts))
				for postURL := range resp.Posts {
					postURLs = append(postURLs, postURL)
				}
				sort.Strings(postURLs)
				rows := make([][]string, 0, len(resp.Posts))
				for _, postURL := range postURLs {
					images := resp.Posts[postURL]
					artists := distinctArtistURLs(images)
					rows = append(rows, []string{
						postURL,
						strconv.Itoa(len(images)),
						strconv.Itoa(len(artists)),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Post", "Images", "Artists"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the post map as JSON")
	return cmd
}

func newPostMapClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every recorded post",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.ClearPostImages()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d recorded posts\n", resp.Removed)
				return nil
			})
		},
	}
}

func distinctArtistURLs(images []msg.PostImage) []string {
	seen := make(map[string]struct{}, len(images))
	urls := make([]string, 0, len(images))
	for _, image := range images {
		if image.ArtistURL == "" {
			continue
		}
		if _, ok := seen[image.ArtistURL]; ok {
			continue
		}
		seen[image.ArtistURL] = struct{}{}
		urls = append(urls, image.ArtistURL)
	}
	return urls
}
