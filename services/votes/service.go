package votes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/idgen"
	"github.com/cummap/backend/pkg/logging"
	"github.com/cummap/backend/repos/resend"
	"github.com/cummap/backend/repos/store"
)

const (
	participantsPath   = "participants"
	delegationBetsPath = "delegationBets"
)

// Reporter mails a summary after each run. Optional.
type Reporter interface {
	SendVoteReport(ctx context.Context, report resend.VoteReport) error
}

type participant struct {
	Name       string            `json:"name"`
	Delegation string            `json:"delegation"`
	Bets       map[string]string `json:"bets"`
}

// SyncResult is what one run did.
type SyncResult struct {
	Participants int `json:"participants"`
	Sports       int `json:"sports"`
	Written      int `json:"written"`
	Failed       int `json:"failed"`
}

func (r SyncResult) Message() string {
	msg := fmt.Sprintf("Synced %d delegation tallies across %d sports from %d participants", r.Written, r.Sports, r.Participants)
	if r.Failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", r.Failed)
	}
	return msg
}

type VotesService struct {
	store    store.Store
	workers  int
	reporter Reporter
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewVotesService builds the service. reporter may be nil.
func NewVotesService(s store.Store, workers int, reporter Reporter, logger *zap.SugaredLogger) *VotesService {
	if workers < 1 {
		workers = 1
	}
	return &VotesService{
		store:    s,
		workers:  workers,
		reporter: reporter,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

type tallyKey struct {
	sport      string
	delegation string
}

// SyncAll recounts every participant bet into delegationBets/<sport>/<delegation>.
// Every (sport, delegation) already present or currently bet on is written,
// so delegations that lost all their bets drop to zero. Fields other than
// votes and updatedAt, notably winner, are kept as they are.
func (s *VotesService) SyncAll(ctx context.Context) (SyncResult, error) {
	participants, err := s.readParticipants(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	counts := map[tallyKey]int{}
	for _, p := range participants {
		for sport, delegation := range p.Bets {
			sport = idgen.SanitizeKey(sport)
			delegation = idgen.SanitizeKey(delegation)
			if sport == "" || delegation == "" {
				continue
			}
			counts[tallyKey{sport, delegation}]++
		}
	}

	existing, err := s.readDelegationBets(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	entries := map[tallyKey]map[string]any{}
	for sport, delegations := range existing {
		for delegation, entry := range delegations {
			entries[tallyKey{sport, delegation}] = entry
		}
	}
	for k := range counts {
		if _, ok := entries[k]; !ok {
			entries[k] = map[string]any{}
		}
	}

	keys := make([]tallyKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sport != keys[j].sport {
			return keys[i].sport < keys[j].sport
		}
		return keys[i].delegation < keys[j].delegation
	})

	updatedAt := s.now().UnixMilli()

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return SyncResult{}, xerrors.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var written, failed atomic.Int32
	var workers sync.WaitGroup
	for _, k := range keys {
		entry := entries[k]
		entry["votes"] = counts[k]
		entry["updatedAt"] = updatedAt
		path := store.JoinPath(delegationBetsPath, k.sport, k.delegation)

		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			if err := s.store.Write(ctx, path, entry); err != nil {
				s.logger.Errorf("Failed to save delegation bet %s: %v", path, err)
				failed.Add(1)
				return
			}
			written.Add(1)
		}); err != nil {
			workers.Done()
			s.logger.Errorf("Failed to submit delegation bet %s: %v", path, err)
			failed.Add(1)
		}
	}
	workers.Wait()

	sports := map[string]struct{}{}
	for _, k := range keys {
		sports[k.sport] = struct{}{}
	}
	result := SyncResult{
		Participants: len(participants),
		Sports:       len(sports),
		Written:      int(written.Load()),
		Failed:       int(failed.Load()),
	}
	s.logger.Infof("Vote sync done: %s", result.Message())

	if s.reporter != nil {
		report := resend.VoteReport{
			At:           s.now(),
			Participants: result.Participants,
			Written:      result.Written,
			Failed:       result.Failed,
		}
		for _, k := range keys {
			report.Tallies = append(report.Tallies, resend.Tally{
				Sport:      k.sport,
				Delegation: k.delegation,
				Votes:      counts[k],
				Winner:     isSet(entries[k]["winner"]),
			})
		}
		if err := s.reporter.SendVoteReport(ctx, report); err != nil {
			s.logger.Warnf("Failed to send vote report: %v", err)
		}
	}
	return result, nil
}

// readParticipants skips entries that do not decode instead of failing the run.
func (s *VotesService) readParticipants(ctx context.Context) (map[string]participant, error) {
	snap, err := s.store.Read(ctx, participantsPath)
	if err != nil {
		return nil, xerrors.Errorf("read participants: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := snap.Unmarshal(&raw); err != nil {
		return nil, xerrors.Errorf("consistency error. participants are not an object: %w", err)
	}
	out := make(map[string]participant, len(raw))
	for uid, data := range raw {
		var p participant
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warnf("Skipping participant %s: %v", uid, err)
			continue
		}
		for sport, delegation := range p.Bets {
			if strings.TrimSpace(delegation) == "" {
				delete(p.Bets, sport)
			}
		}
		out[uid] = p
	}
	return out, nil
}

func (s *VotesService) readDelegationBets(ctx context.Context) (map[string]map[string]map[string]any, error) {
	snap, err := s.store.Read(ctx, delegationBetsPath)
	if err != nil {
		return nil, xerrors.Errorf("read delegation bets: %w", err)
	}
	var raw map[string]any
	if err := snap.Unmarshal(&raw); err != nil {
		return nil, xerrors.Errorf("consistency error. delegation bets are not an object: %w", err)
	}
	out := map[string]map[string]map[string]any{}
	for sport, v := range raw {
		delegations, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[sport] = map[string]map[string]any{}
		for delegation, e := range delegations {
			entry, ok := e.(map[string]any)
			if !ok {
				entry = map[string]any{}
			}
			out[sport][delegation] = entry
		}
	}
	return out, nil
}

func isSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	return true
}
