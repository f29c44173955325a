package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/radar-pilot/internal/logger"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/matchapi"
	"github.com/spigell/radar-pilot/internal/pipeline"
	"github.com/spigell/radar-pilot/internal/report"
)

const (
	PromptSend   = "Send matches"
	PromptSkip   = "Skip"
	PromptReport = "Show report"
	PromptNote   = "Show cover note"
	PromptDump   = "Dump results to file"
)

var errSkip = errors.New("skip requested")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger matches, report them and send notifications",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("kind", "k", string(match.KindJDToResumes), "match kind: jd_to_resumes, resume_to_jds or one_to_one")
	runCmd.Flags().StringSlice("jd-id", nil, "job description ids to match")
	runCmd.Flags().StringSlice("resume-id", nil, "resume ids to match")
	runCmd.Flags().String("profile-id", "", "candidate profile id for resume matches")
	runCmd.Flags().String("jd-file", "", "upload a job description file before matching")
	runCmd.Flags().String("resume-file", "", "upload a resume file before matching")
	runCmd.Flags().String("job-title", "", "job title for the uploaded job description and email subject")
	runCmd.Flags().String("uploaded-by", "", "uploader recorded with the job description")
	runCmd.Flags().String("project-code", "", "project code recorded with the job description")
	runCmd.Flags().String("resume-name", "", "candidate name for the uploaded resume")
	runCmd.Flags().String("to", "", "notification recipient, overrides notify.to")
	runCmd.Flags().BoolP("auto-approve", "y", false, "send manual notifications without asking")
	runCmd.Flags().Bool("dump", false, "dump every result set to a temporary yaml file")

	viper.BindPFlag("notify.auto-approve", runCmd.Flags().Lookup("auto-approve"))
	viper.BindPFlag("notify.to", runCmd.Flags().Lookup("to"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the radar-pilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	kind, err := match.ParseKind(flagString(cmd, "kind"))
	if err != nil {
		logger.Fatal("parsing match kind", zap.Error(err))
	}

	d, err := newDeps(ctx, config, logger)
	if err != nil {
		logger.Fatal(
			"preparing dependencies",
			zap.Error(err),
			zap.String("hint", "set RADAR_TOKEN_FILE environment variable or the 'api.token-file' key in the configuration file"),
		)
	}

	subjects, err := collectSubjects(ctx, cmd, d.client, kind, logger)
	if err != nil {
		logger.Fatal("collecting subjects", zap.Error(err))
	}

	if len(subjects) == 0 {
		logger.Info("exiting", zap.String("reason", "nothing to match"))
		return
	}

	if _, err := d.thresholds.Refresh(ctx); err != nil {
		logger.Warn("using configured thresholds", zap.Error(err))
	}

	controllers, err := startAll(ctx, d, kind, subjects, flagString(cmd, "job-title"))
	defer func() {
		for _, c := range controllers {
			c.Cancel()
		}
	}()
	if err != nil {
		logger.Error("starting pipelines", zap.Error(err))
		return
	}

	failed := 0
	for _, c := range controllers {
		if err := handleController(ctx, cmd, c, config, logger); err != nil && !errors.Is(err, errSkip) {
			logger.Error("notification failed", zap.String("pipeline_id", c.ID()), zap.Error(err))
		}
		if c.State() == pipeline.StateFailed {
			failed++
		}
	}

	logger.Info("done", zap.Int("pipelines", len(controllers)), zap.Int("failed", failed))
}

// collectSubjects uploads the files given on the command line and pairs the
// ids according to the match kind.
func collectSubjects(ctx context.Context, cmd *cobra.Command, client *matchapi.Client, kind match.Kind, log *zap.Logger) ([]match.Subject, error) {
	jdIDs, _ := cmd.Flags().GetStringSlice("jd-id")
	resumeIDs, _ := cmd.Flags().GetStringSlice("resume-id")

	if path := flagString(cmd, "jd-file"); path != "" {
		jd, err := client.UploadJD(ctx, path, matchapi.JDMeta{
			JobTitle:    flagString(cmd, "job-title"),
			UploadedBy:  flagString(cmd, "uploaded-by"),
			ProjectCode: flagString(cmd, "project-code"),
		})
		if err != nil {
			return nil, err
		}
		log.Info("uploaded job description", zap.String(logger.FieldJD, jd.ID), zap.String("title", jd.Title))
		jdIDs = append(jdIDs, jd.ID)
	}

	if path := flagString(cmd, "resume-file"); path != "" {
		id, err := client.UploadResume(ctx, path, flagString(cmd, "resume-name"))
		if err != nil {
			return nil, err
		}
		log.Info("uploaded resume", zap.String(logger.FieldResume, id))
		resumeIDs = append(resumeIDs, id)
	}

	profileID := flagString(cmd, "profile-id")

	var subjects []match.Subject
	switch kind {
	case match.KindJDToResumes:
		for _, id := range jdIDs {
			subjects = append(subjects, match.Subject{JDID: id})
		}
	case match.KindResumeToJDs:
		for _, id := range resumeIDs {
			subjects = append(subjects, match.Subject{ResumeID: id, ProfileID: profileID})
		}
		if len(resumeIDs) == 0 && profileID != "" {
			subjects = append(subjects, match.Subject{ProfileID: profileID})
		}
	case match.KindOneToOne:
		for _, jd := range jdIDs {
			for _, resume := range resumeIDs {
				subjects = append(subjects, match.Subject{JDID: jd, ResumeID: resume, ProfileID: profileID})
			}
		}
	}

	for _, s := range subjects {
		if err := s.Validate(kind); err != nil {
			return nil, err
		}
	}

	return subjects, nil
}

// startAll runs one controller per subject with bounded concurrency. A failed
// pipeline does not stop the others.
func startAll(ctx context.Context, d *deps, kind match.Kind, subjects []match.Subject, jobTitle string) ([]*pipeline.Controller, error) {
	controllers := make([]*pipeline.Controller, 0, len(subjects))
	for range subjects {
		c, err := d.newController(kind, pipeline.Notify{JobTitle: jobTitle})
		if err != nil {
			return controllers, err
		}
		controllers = append(controllers, c)
	}

	var g errgroup.Group
	if d.config.Pipeline.Concurrency > 0 {
		g.SetLimit(d.config.Pipeline.Concurrency)
	}

	for i, c := range controllers {
		subject := subjects[i]
		g.Go(func() error {
			if err := c.Start(ctx, subject); err != nil {
				d.logger.Warn("pipeline failed", zap.String(logger.FieldPipeline, c.ID()), zap.Error(err))
			}
			return nil
		})
	}

	return controllers, g.Wait()
}

func handleController(ctx context.Context, cmd *cobra.Command, c *pipeline.Controller, config *Config, log *zap.Logger) error {
	rs, _ := c.Result()
	report.Render(os.Stdout, c.Snapshot(), rs)

	if flagBool(cmd, "dump") {
		if err := dump(c, log); err != nil {
			return err
		}
	}

	if c.State() != pipeline.StateAwaitingManualSend {
		return nil
	}

	if config.Notify.AutoApprove {
		return c.RequestManualSend(ctx, pipeline.Recipients{})
	}

	snap := c.Snapshot()
	label := fmt.Sprintf("Send %d matches to %s?", len(snap.Decision.Attachments), config.Notify.To)
	items := []string{PromptSend, PromptSkip, PromptReport, PromptDump}
	if snap.CoverNote != "" {
		label = fmt.Sprintf("Send %d matches to %s with the cover note above?", len(snap.Decision.Attachments), config.Notify.To)
		items = []string{PromptSend, PromptSkip, PromptNote, PromptReport, PromptDump}
	}

	prompt := promptui.Select{
		Label: label,
		Items: items,
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptSend:
			err := c.RequestManualSend(ctx, pipeline.Recipients{})
			if errors.Is(err, pipeline.ErrSendFailed) && ctx.Err() == nil {
				log.Warn("send failed, choose again to retry", zap.Error(err))
				continue
			}
			return err
		case PromptSkip:
			log.Info("skipping notification", zap.String(logger.FieldPipeline, c.ID()))
			return errSkip
		case PromptReport:
			report.Render(os.Stdout, c.Snapshot(), rs)
		case PromptNote:
			fmt.Fprintf(os.Stdout, "\n%s\n\n", c.Snapshot().CoverNote)
		case PromptDump:
			if err := dump(c, log); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func dump(c *pipeline.Controller, log *zap.Logger) error {
	rs, _ := c.Result()
	filename, err := report.DumpToTmpFile(c.Snapshot(), rs)
	if err != nil {
		return fmt.Errorf("dump results to file: %w", err)
	}
	log.Info("dumping result to file", zap.String("filename", filename))

	return nil
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
