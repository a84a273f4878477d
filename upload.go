package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ytup/internal/transfer"
	"ytup/internal/youtube"
)

// uploadFlags holds the metadata flag values for one upload invocation.
type uploadFlags struct {
	title                string
	description          string
	tags                 []string
	categoryID           string
	defaultLanguage      string
	defaultAudioLanguage string
	latitude             float64
	longitude            float64
	privacy              string
	license              string
	publishAt            string
	publicStatsViewable  bool
	madeForKids          bool
	ageGroup             string
	gender               string
	countries            []string
	playlistID           string
	thumbnail            string

	noJournal bool
}

func newUploadCmd() *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload <video-file>",
		Short: "Upload a video",
		Long: `Upload a video file over the resumable upload protocol.

The transfer survives transient failures: chunks are retried with backoff,
expired access tokens are refreshed mid-flight, and an interrupted run can be
resumed by re-running the same command — the resume journal remembers the
open upload session and continues from the last server-confirmed byte.

On success the video id is printed on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.title, "title", "t", "", "video title (defaults to the file name)")
	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "video description")
	cmd.Flags().StringSliceVar(&flags.tags, "tags", nil, "comma-separated keyword tags")
	cmd.Flags().StringVar(&flags.categoryID, "category-id", "", "numeric video category id")
	cmd.Flags().StringVar(&flags.defaultLanguage, "language", "", "metadata language (BCP-47 tag)")
	cmd.Flags().StringVar(&flags.defaultAudioLanguage, "audio-language", "", "audio track language (BCP-47 tag)")
	cmd.Flags().Float64Var(&flags.latitude, "latitude", 0, "recording location latitude")
	cmd.Flags().Float64Var(&flags.longitude, "longitude", 0, "recording location longitude")
	cmd.Flags().StringVar(&flags.privacy, "privacy", "private", "privacy status: public, private, or unlisted")
	cmd.Flags().StringVar(&flags.license, "license", "", "license: youtube or creativeCommon")
	cmd.Flags().StringVar(&flags.publishAt, "publish-at", "", "scheduled publish time (RFC 3339)")
	cmd.Flags().BoolVar(&flags.publicStatsViewable, "public-stats-viewable", false, "make extended video statistics publicly viewable")
	cmd.Flags().BoolVar(&flags.madeForKids, "made-for-kids", false, "declare the video as made for kids")
	cmd.Flags().StringVar(&flags.ageGroup, "age-group", "", "audience age group (e.g. 18-)")
	cmd.Flags().StringVar(&flags.gender, "gender", "", "audience gender: male or female")
	cmd.Flags().StringSliceVar(&flags.countries, "countries", nil, "audience countries (ISO 3166-1 codes)")
	cmd.Flags().StringVar(&flags.playlistID, "playlist-id", "", "add the uploaded video to this playlist")
	cmd.Flags().StringVar(&flags.thumbnail, "thumbnail", "", "custom thumbnail image file")
	cmd.Flags().BoolVar(&flags.noJournal, "no-journal", false, "disable the resume journal for this upload")

	return cmd
}

func runUpload(cmd *cobra.Command, path string, flags *uploadFlags) error {
	logger := buildLogger()
	ctx := shutdownContext(context.Background(), logger)

	meta, err := buildMetadata(cmd, path, flags)
	if err != nil {
		return err
	}

	authorizer, err := newAuthorizer(logger)
	if err != nil {
		return err
	}

	// Authorize up front so auth problems surface before any bytes move.
	if err := authorizer.Authorize(ctx, interactiveFlow()); err != nil {
		return err
	}

	client := newYouTubeClient(authorizer, logger)

	opts := transfer.Options{
		ChunkSize: settings.ChunkSize,
		Policy:    retryPolicy(),
	}

	if !flags.noJournal {
		journal, err := transfer.OpenJournal(settings.JournalFile, logger)
		if err != nil {
			// The journal is a resume optimization, not a requirement.
			logger.Warn("resume journal unavailable, continuing without it",
				"error", err.Error(),
			)
		} else {
			defer journal.Close()
			opts.Journal = journal
		}
	}

	session := transfer.NewSession(client, authorizer, opts, logger)

	statusf("Uploading %s...\n", filepath.Base(path))

	video, err := session.Run(ctx, path, meta)
	if err != nil {
		return err
	}

	statusf("Upload complete: ")
	fmt.Println(video.ID)

	// Post-upload steps are best-effort: the video is already live, so a
	// thumbnail or playlist failure must not report the upload as failed.
	if flags.thumbnail != "" {
		if err := uploadThumbnail(ctx, client, video.ID, flags.thumbnail); err != nil {
			logger.Error("thumbnail upload failed", "error", err.Error())
			fmt.Fprintf(os.Stderr, "Warning: thumbnail upload failed: %v\n", err)
		}
	}

	if flags.playlistID != "" {
		if err := client.AddToPlaylist(ctx, video.ID, flags.playlistID); err != nil {
			logger.Error("playlist insert failed", "error", err.Error())
			fmt.Fprintf(os.Stderr, "Warning: could not add to playlist: %v\n", err)
		}
	}

	return nil
}

// buildMetadata maps flags onto the API metadata model and validates shape
// at the boundary, so everything past this point can treat it as opaque.
func buildMetadata(cmd *cobra.Command, path string, flags *uploadFlags) (*youtube.Metadata, error) {
	title := flags.title
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	meta := &youtube.Metadata{
		Title:                title,
		Description:          flags.description,
		Tags:                 flags.tags,
		CategoryID:           flags.categoryID,
		DefaultLanguage:      flags.defaultLanguage,
		DefaultAudioLanguage: flags.defaultAudioLanguage,
		PrivacyStatus:        flags.privacy,
		License:              flags.license,
		PublishAt:            flags.publishAt,
		PublicStatsViewable:  flags.publicStatsViewable,
		MadeForKids:          flags.madeForKids,
		AgeGroup:             flags.ageGroup,
		Gender:               flags.gender,
		Countries:            flags.countries,
		PlaylistID:           flags.playlistID,
		ThumbnailPath:        flags.thumbnail,
	}

	// Zero is a valid coordinate, so presence is flag-changed, not value.
	if cmd.Flags().Changed("latitude") {
		meta.Latitude = &flags.latitude
	}

	if cmd.Flags().Changed("longitude") {
		meta.Longitude = &flags.longitude
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return meta, nil
}

// uploadThumbnail opens the image and sends it as the video's custom
// thumbnail.
func uploadThumbnail(ctx context.Context, client *youtube.Client, videoID, imagePath string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("opening thumbnail: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat thumbnail: %w", err)
	}

	return client.SetThumbnail(ctx, videoID, f, info.Size(), imagePath)
}
