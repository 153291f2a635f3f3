package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	appctx "github.com/bassista/manifest_alert/internal/app"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/bassista/manifest_alert/internal/scheduler"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	muteDuration time.Duration
	muteReason   string
	ackDate      string
	ackReason    string
	keepDays     int
	keepBackups  int

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show mute state, today's manifests and acknowledgments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runStatus(ctx, cmd.OutOrStdout(), app)
		},
	}

	muteCmd = &cobra.Command{
		Use:     "mute",
		Short:   "Mute alerts for everyone",
		Example: "manifestctl mute\nmanifestctl mute --for 30m --reason \"stocktake\"",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			st, err := app.Mute.Mute(ctx, user, muteReason, muteDuration)
			if err != nil {
				return err
			}
			return printMute(cmd.OutOrStdout(), st, app.Now())
		},
	}

	unmuteCmd = &cobra.Command{
		Use:   "unmute",
		Short: "Unmute alerts for everyone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			st, err := app.Mute.Unmute(ctx, user)
			if err != nil {
				return err
			}
			return printMute(cmd.OutOrStdout(), st, app.Now())
		},
	}

	snoozeCmd = &cobra.Command{
		Use:   "snooze [MINUTES]",
		Short: "Snooze alerts, by default for the configured snooze length",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runSnooze(ctx, cmd.OutOrStdout(), app, args)
		},
	}

	ackCmd = &cobra.Command{
		Use:     "ack HH:MM CARRIER",
		Short:   "Acknowledge one carrier of a manifest",
		Example: "manifestctl ack 13:00 \"DHL Express\" --reason \"picked up early\"",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runAck(ctx, cmd.OutOrStdout(), app, args[0], args[1])
		},
	}

	acksCmd = &cobra.Command{
		Use:   "acks",
		Short: "List the acknowledgments of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return runAcks(ctx, cmd.OutOrStdout(), app)
		},
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Drop old acknowledgments and prune network backups now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if !cmd.Flags().Changed("keep-days") {
				keepDays = app.Config.Maintenance.AckRetentionDays
			}
			if !cmd.Flags().Changed("keep-backups") {
				keepBackups = app.Config.Network.BackupsToKeep
			}
			return runCleanup(ctx, cmd.OutOrStdout(), app, keepDays, keepBackups)
		},
	}
)

func init() {
	muteCmd.Flags().DurationVar(&muteDuration, "for", 0, "how long to mute (0 mutes until unmuted)")
	muteCmd.Flags().StringVar(&muteReason, "reason", "Manual", "why alerts are muted")

	ackCmd.Flags().StringVar(&ackDate, "date", "", "manifest date as YYYY-MM-DD (default today)")
	ackCmd.Flags().StringVar(&ackReason, "reason", "", "optional note")
	acksCmd.Flags().StringVar(&ackDate, "date", "", "date as YYYY-MM-DD (default today)")

	cleanupCmd.Flags().IntVar(&keepDays, "keep-days", 0, "days of acknowledgments to keep (default from config)")
	cleanupCmd.Flags().IntVar(&keepBackups, "keep-backups", 0, "network backups to keep per file, 0 disables pruning (default from config)")
}

func today(a *appctx.App) string {
	return a.Now().Format(repository.DateLayout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeMute(st repository.MuteStatus, now time.Time) string {
	if !st.IsCurrentlyMuted(now) {
		if st.IsMuted && st.MuteType == repository.MuteSnooze {
			return fmt.Sprintf("active (snooze by %s ended %s)", st.MutedBy, humanize.Time(st.SnoozeUntil.Time))
		}
		return "active"
	}
	var b strings.Builder
	b.WriteString("muted")
	if st.MutedBy != "" {
		fmt.Fprintf(&b, " by %s", st.MutedBy)
	}
	if st.Reason != "" {
		fmt.Fprintf(&b, " (%s)", st.Reason)
	}
	if st.MuteType == repository.MuteSnooze {
		fmt.Fprintf(&b, " until %s, %s left", st.SnoozeUntil.Format("15:04"), strings.TrimSpace(humanize.RelTime(now, now.Add(st.Remaining(now)), "", "")))
	}
	return strings.TrimSpace(b.String())
}

func printMute(w io.Writer, st repository.MuteStatus, now time.Time) error {
	if jsonOutput {
		return printJSON(w, st)
	}
	_, err := fmt.Fprintf(w, "alerts: %s\n", describeMute(st, now))
	return err
}

func runStatus(ctx context.Context, w io.Writer, a *appctx.App) error {
	st, err := a.Mute.Load(ctx)
	if err != nil {
		return err
	}
	date := today(a)
	manifests, err := a.Manifests.LoadManifests(ctx, date)
	if err != nil {
		return err
	}
	acks, err := a.Acks.LoadForDate(ctx, date)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(w, map[string]any{
			"mute":            st,
			"manifests":       manifests,
			"acknowledgments": acks,
		})
	}

	acked := map[repository.AckKey]bool{}
	for _, ack := range acks {
		acked[ack.Key()] = true
	}
	fmt.Fprintf(w, "alerts: %s\n", describeMute(st, a.Now()))
	fmt.Fprintf(w, "manifests for %s:\n", date)
	for _, m := range manifests {
		done := 0
		for _, c := range m.Carriers {
			if acked[repository.AckKey{Date: date, ManifestTime: m.Time, Carrier: c}] {
				done++
			}
		}
		fmt.Fprintf(w, "  %s  %d/%d acknowledged\n", m.Time, done, len(m.Carriers))
	}
	return nil
}

func runSnooze(ctx context.Context, w io.Writer, a *appctx.App, args []string) error {
	minutes := repository.DefaultSnoozeMinutes
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid minutes %q: expected a positive number", args[0])
		}
		minutes = n
	} else if s, err := a.Settings.Load(ctx); err == nil && s.SnoozeDefaultMinutes > 0 {
		minutes = s.SnoozeDefaultMinutes
	}
	st, err := a.Mute.Snooze(ctx, user, minutes)
	if err != nil {
		return err
	}
	return printMute(w, st, a.Now())
}

func runAck(ctx context.Context, w io.Writer, a *appctx.App, manifestTime, carrier string) error {
	date := ackDate
	if date == "" {
		date = today(a)
	}
	ack := repository.Acknowledgment{
		Date:         date,
		ManifestTime: manifestTime,
		Carrier:      carrier,
		User:         user,
		Reason:       ackReason,
		Timestamp:    repository.NewTimestamp(a.Now()),
	}
	if err := a.Acks.Save(ctx, ack); err != nil {
		return err
	}
	if jsonOutput {
		ack.Normalize()
		return printJSON(w, ack)
	}
	_, err := fmt.Fprintf(w, "acknowledged %s %s for %s\n", ack.ManifestTime, strings.TrimSpace(carrier), date)
	return err
}

func runAcks(ctx context.Context, w io.Writer, a *appctx.App) error {
	date := ackDate
	if date == "" {
		date = today(a)
	}
	acks, err := a.Acks.LoadForDate(ctx, date)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, acks)
	}
	if len(acks) == 0 {
		_, err := fmt.Fprintf(w, "no acknowledgments for %s\n", date)
		return err
	}
	sort.SliceStable(acks, func(i, j int) bool { return acks[i].ManifestTime < acks[j].ManifestTime })
	for _, ack := range acks {
		line := fmt.Sprintf("%s  %-24s %s, %s", ack.ManifestTime, ack.Carrier, ack.User, humanize.Time(ack.Timestamp.Time))
		if ack.Reason != "" {
			line += " (" + ack.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runCleanup(ctx context.Context, w io.Writer, a *appctx.App, days, backups int) error {
	s, err := scheduler.NewMaintenanceScheduler(scheduler.Options{
		Acks:          a.Acks,
		Pruner:        a.Accessor,
		Files:         a.Filenames(),
		RetentionDays: days,
		BackupsToKeep: backups,
		Now:           a.Now,
	})
	if err != nil {
		return err
	}
	res, err := s.RunNow(ctx)
	if jsonOutput {
		if perr := printJSON(w, res); perr != nil {
			return perr
		}
		return err
	}
	pruned := 0
	for _, n := range res.BackupsRemoved {
		pruned += n
	}
	fmt.Fprintf(w, "removed %s acknowledgments and %s backups in %s\n",
		humanize.Comma(int64(res.AcksRemoved)), humanize.Comma(int64(pruned)), res.Duration.Round(time.Millisecond))
	return err
}
