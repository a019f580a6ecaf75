package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
	"github.com/moli-lab/limen/internal/limen/types"
	"github.com/moli-lab/limen/internal/notify"
)

// Reporter is a read-only consumer of the access log: it computes the
// daily visit summary and the weekly dwell-time ranking, serves them on
// demand, and publishes the daily one at a configured hour.
type Reporter struct {
	logs     store.AccessLogStore
	creds    store.CredentialStore
	notifier notify.Publisher
	logger   *log.Logger
	hour     int // local hour of day for the scheduled report
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewReporter(logs store.AccessLogStore, creds store.CredentialStore, notifier notify.Publisher, hour int, logger *log.Logger) *Reporter {
	if hour < 0 || hour > 23 {
		hour = 22
	}
	return &Reporter{
		logs:     logs,
		creds:    creds,
		notifier: notifier,
		logger:   logger,
		hour:     hour,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// DailyReport summarizes one calendar day (local midnight to midnight).
func (r *Reporter) DailyReport(ctx context.Context, day time.Time) (types.DailyReport, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	events, err := r.logs.EventsBetween(ctx, from, to)
	if err != nil {
		return types.DailyReport{}, fmt.Errorf("daily events: %w", err)
	}

	rep := types.DailyReport{Date: from.Format("2006-01-02")}
	entries := make(map[string]int)
	var lastExit *store.AccessLogRecord

	for i, ev := range events {
		switch ev.Action {
		case store.ActionEntry:
			rep.Entries++
			if ev.StudentID != nil {
				entries[*ev.StudentID]++
			}
		case store.ActionExit:
			if ev.StudentID != nil {
				lastExit = &events[i]
			}
		case store.ActionDeny:
			rep.Denies++
		}
	}

	if top := topVisitor(entries); top != "" {
		rep.TopVisitor = &types.VisitorCount{
			StudentID: top,
			Name:      r.nameOf(ctx, top),
			Entries:   entries[top],
		}
	}
	if lastExit != nil {
		rep.LatestDeparture = &types.Departure{
			StudentID: *lastExit.StudentID,
			Name:      r.nameOf(ctx, *lastExit.StudentID),
			At:        lastExit.At.Format(time.RFC3339),
		}
	}

	return rep, nil
}

// WeeklyReport ranks users by total dwell time over the seven days ending
// at (and excluding) the midnight after end.
func (r *Reporter) WeeklyReport(ctx context.Context, end time.Time) (types.WeeklyReport, error) {
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -7)

	events, err := r.logs.EventsBetween(ctx, from, to)
	if err != nil {
		return types.WeeklyReport{}, fmt.Errorf("weekly events: %w", err)
	}

	totals := dwellTotals(events)

	rep := types.WeeklyReport{
		Start: from.Format("2006-01-02"),
		End:   to.Format("2006-01-02"),
	}
	for sid, total := range totals {
		rep.Dwell = append(rep.Dwell, types.DwellRank{
			StudentID:    sid,
			Name:         r.nameOf(ctx, sid),
			TotalSeconds: int64(total / time.Second),
		})
	}
	sort.Slice(rep.Dwell, func(i, j int) bool {
		if rep.Dwell[i].TotalSeconds != rep.Dwell[j].TotalSeconds {
			return rep.Dwell[i].TotalSeconds > rep.Dwell[j].TotalSeconds
		}
		return rep.Dwell[i].StudentID < rep.Dwell[j].StudentID
	})

	return rep, nil
}

// dwellTotals pairs each user's entry with the next exit, in log order.
// A trailing entry with no exit contributes nothing.
func dwellTotals(events []store.AccessLogRecord) map[string]time.Duration {
	totals := make(map[string]time.Duration)
	open := make(map[string]time.Time)

	for _, ev := range events {
		if ev.StudentID == nil {
			continue
		}
		sid := *ev.StudentID
		switch ev.Action {
		case store.ActionEntry:
			open[sid] = ev.At
		case store.ActionExit:
			if in, ok := open[sid]; ok {
				totals[sid] += ev.At.Sub(in)
				delete(open, sid)
			}
		}
	}
	return totals
}

func topVisitor(entries map[string]int) string {
	best := ""
	for sid, n := range entries {
		if best == "" || n > entries[best] || (n == entries[best] && sid < best) {
			best = sid
		}
	}
	return best
}

func (r *Reporter) nameOf(ctx context.Context, studentID string) string {
	user, err := r.creds.GetUser(ctx, studentID)
	if err != nil {
		return ""
	}
	return user.Name
}

// Start runs the scheduler: the daily report publishes every day at the
// configured hour, plus the weekly ranking on Sundays.
func (r *Reporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
	r.logger.Printf("reporter started (daily at %02d:00)", r.hour)
}

func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *Reporter) loop(ctx context.Context) {
	defer close(r.done)

	for {
		next := r.nextRun()
		timer := time.NewTimer(next.Sub(r.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.run(ctx, next)
		}
	}
}

// nextRun returns the next occurrence of the configured hour.
func (r *Reporter) nextRun() time.Time {
	now := r.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (r *Reporter) run(ctx context.Context, at time.Time) {
	daily, err := r.DailyReport(ctx, at)
	if err != nil {
		r.logger.Printf("daily report: %v", err)
		return
	}

	msg := fmt.Sprintf("daily report %s: %d entries, %d denies", daily.Date, daily.Entries, daily.Denies)
	if daily.TopVisitor != nil {
		msg += fmt.Sprintf("; top visitor %s (%d entries)", daily.TopVisitor.StudentID, daily.TopVisitor.Entries)
	}
	if daily.LatestDeparture != nil {
		msg += fmt.Sprintf("; last out %s at %s", daily.LatestDeparture.StudentID, daily.LatestDeparture.At)
	}
	r.publishReport(msg)

	if at.Weekday() == time.Sunday {
		weekly, err := r.WeeklyReport(ctx, at)
		if err != nil {
			r.logger.Printf("weekly report: %v", err)
			return
		}
		wmsg := fmt.Sprintf("weekly dwell ranking %s to %s:", weekly.Start, weekly.End)
		for i, d := range weekly.Dwell {
			if i == 3 {
				break
			}
			wmsg += fmt.Sprintf(" %s=%ds", d.StudentID, d.TotalSeconds)
		}
		r.publishReport(wmsg)
	}
}

func (r *Reporter) publishReport(msg string) {
	ev := notify.NewEvent(notify.KindReport)
	ev.Message = msg
	if err := r.notifier.Publish(context.Background(), ev); err != nil {
		r.logger.Printf("publish report: %v", err)
	}
}
