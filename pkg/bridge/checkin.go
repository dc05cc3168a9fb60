package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/Masterminds/semver/v3"
)

// SkillManifestEntry is one skill named in a daily check-in's manifest.
type SkillManifestEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

const checkinTaskType = "skills_checkin"

// SendDailySkillsCheckins sends at-most-once-per-interval skills check-in
// envelopes to every configured peer. manifest is this node's current
// skill list, compared via semver against the version last recorded for
// each peer; a newer manifest annotates the episodic record with
// new_skills_since.
func (b *Bridge) SendDailySkillsCheckins(ctx context.Context, intervalSeconds int64, manifest []SkillManifestEntry) ([]CheckinResult, error) {
	if intervalSeconds <= 0 {
		intervalSeconds = 86400
	}

	now := envelope.Now()
	results := make([]CheckinResult, 0)

	for _, entry := range b.nodes.ConfiguredTargets(b.profileName) {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		target := entry.Profile

		lastSent, found, err := b.store.LastOutboxTimestamp(ctx, target, checkinTaskType, "sent")
		if err != nil {
			return results, fmt.Errorf("bridge: reading last checkin timestamp for %s: %w", target, err)
		}
		if found && now-lastSent < intervalSeconds {
			continue
		}

		newSince, currentVersion := b.newSkillsSince(ctx, target, manifest)

		payload := map[string]interface{}{
			"kind":            "daily_skills_checkin",
			"question":        "Hey, do you have any cool new skills today?",
			"requested_at":    now,
			"skills_manifest": manifest,
		}

		sendResult, sendErr := b.Send(ctx, target, checkinTaskType, payload, RouteAuto)
		if sendErr != nil {
			results = append(results, CheckinResult{Target: target, OK: false, Error: sendErr.Error()})
			if _, err := b.store.RecordEvent(ctx, "skills_checkin", target, store.DecisionDeny, map[string]interface{}{
				"error": sendErr.Error(),
			}); err != nil {
				b.logger.Error("bridge: recording failed checkin event", slog.String("target", target), slog.Any("error", err))
			}
			continue
		}

		eventPayload := map[string]interface{}{"sent": sendResult.Sent}
		if newSince != "" {
			eventPayload["new_skills_since"] = newSince
		}
		if _, err := b.store.RecordEvent(ctx, "skills_checkin", target, store.DecisionAllow, eventPayload); err != nil {
			b.logger.Error("bridge: recording checkin event", slog.String("target", target), slog.Any("error", err))
		}
		if currentVersion != "" {
			if err := b.store.SetProfileFact(ctx, manifestFactKey(target), currentVersion); err != nil {
				b.logger.Error("bridge: persisting manifest version", slog.String("target", target), slog.Any("error", err))
			}
		}

		results = append(results, CheckinResult{Target: target, OK: true})
	}

	return results, nil
}

func manifestFactKey(target string) string {
	return fmt.Sprintf("skills_manifest_version:%s", target)
}

// newSkillsSince returns the last-recorded manifest version for target
// (if this node's current highest version is newer) and the current
// highest version seen in manifest. An empty first return means no
// newer skills to report.
func (b *Bridge) newSkillsSince(ctx context.Context, target string, manifest []SkillManifestEntry) (string, string) {
	current := highestVersion(manifest)
	if current == nil {
		return "", ""
	}

	fact, ok, err := b.store.GetProfileFact(ctx, manifestFactKey(target))
	if err != nil || !ok {
		return "", current.String()
	}

	previous, err := semver.NewVersion(fact.Value)
	if err != nil {
		return "", current.String()
	}

	if current.GreaterThan(previous) {
		return previous.String(), current.String()
	}
	return "", current.String()
}

func highestVersion(manifest []SkillManifestEntry) *semver.Version {
	var highest *semver.Version
	for _, entry := range manifest {
		v, err := semver.NewVersion(entry.Version)
		if err != nil {
			continue
		}
		if highest == nil || v.GreaterThan(highest) {
			highest = v
		}
	}
	return highest
}
