// Package groupsync records group membership and keeps stored group links
// visible to every member who has joined.
package groupsync

import (
	"context"
	"errors"
	"fmt"

	groupstore "github.com/dalemusser/mapstash/internal/app/store/groups"
	"github.com/dalemusser/mapstash/internal/app/system/batch"
	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"go.uber.org/zap"
)

// GroupStore reads groups and records membership.
type GroupStore interface {
	Get(ctx context.Context, id string) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID string, info groupstore.Info) (bool, error)
	Ensure(ctx context.Context, groupID string, info groupstore.Info) (bool, error)
}

// UserStore registers users.
type UserStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	UpsertProfile(ctx context.Context, p models.Profile) error
}

// LinkBackfiller grants a new member visibility of a group's links.
type LinkBackfiller interface {
	AddMemberToGroupLinks(ctx context.Context, w *batch.Writer, groupID, userID string) (batch.Result, error)
}

// Platform is the messaging-platform lookups the syncer needs.
type Platform interface {
	Profile(ctx context.Context, userID string) (models.Profile, error)
	GroupMemberProfile(ctx context.Context, groupID, userID string) (models.Profile, error)
	GroupSummary(ctx context.Context, groupID string) (messaging.GroupSummary, error)
}

// Syncer performs idempotent group joins.
type Syncer struct {
	groups   GroupStore
	users    UserStore
	links    LinkBackfiller
	platform Platform
	writer   *batch.Writer
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New builds a Syncer. m may be nil.
func New(groups GroupStore, users UserStore, links LinkBackfiller, platform Platform, w *batch.Writer, m *metrics.Metrics, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if w == nil {
		w = batch.New(batch.DefaultSize, logger)
	}
	return &Syncer{
		groups:   groups,
		users:    users,
		links:    links,
		platform: platform,
		writer:   w,
		metrics:  m,
		log:      logger,
	}
}

// Join records userID as a member of groupID, creating the group on first
// sight. It returns false without writing when the user is already a member.
// When the user is newly added, every link already shared in the group is
// made visible to them before Join returns; backfill failures are logged
// and do not fail the join.
func (s *Syncer) Join(ctx context.Context, groupID, userID string) (bool, error) {
	if groupID == "" || userID == "" {
		return false, errors.New("join: empty group or user id")
	}

	existing, err := s.getGroup(ctx, groupID)
	exists := err == nil
	if err != nil && !errors.Is(err, groupstore.ErrNotFound) {
		return false, failures.Store("load group", err)
	}
	if exists && existing.HasMember(userID) {
		return false, nil
	}

	if err := s.ensureUser(ctx, groupID, userID); err != nil {
		return false, err
	}

	var info groupstore.Info
	if !exists {
		info = s.summary(ctx, groupID)
	}

	actx, cancel := context.WithTimeout(ctx, timeouts.Short())
	added, err := s.groups.AddMember(actx, groupID, userID, info)
	cancel()
	if err != nil {
		return false, failures.Store("add group member", err)
	}
	if !added {
		return false, nil
	}

	s.log.Info("group member added",
		zap.String("group_id", groupID),
		zap.String("user_id", userID),
		zap.Bool("group_created", !exists))

	s.backfill(ctx, groupID, userID)
	return true, nil
}

// Touch is the message-path entry and returns the group as stored afterwards.
// A registered sender is joined if needed. An unregistered sender only causes
// the group to be recorded; they are never registered or added as a member
// from a message.
func (s *Syncer) Touch(ctx context.Context, groupID, userID string) (models.Group, error) {
	registered, err := s.userExists(ctx, userID)
	if err != nil {
		return models.Group{}, err
	}
	if registered {
		if _, err := s.Join(ctx, groupID, userID); err != nil {
			return models.Group{}, err
		}
	} else if err := s.EnsureGroup(ctx, groupID); err != nil {
		return models.Group{}, err
	}

	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, failures.Store("load group", err)
	}
	return g, nil
}

// EnsureGroup creates the group if the bot has not seen it before. Used when
// the bot itself is added to a group.
func (s *Syncer) EnsureGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return errors.New("ensure group: empty group id")
	}
	if _, err := s.getGroup(ctx, groupID); err == nil {
		return nil
	} else if !errors.Is(err, groupstore.ErrNotFound) {
		return failures.Store("load group", err)
	}
	info := s.summary(ctx, groupID)

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	created, err := s.groups.Ensure(ctx, groupID, info)
	if err != nil {
		return failures.Store("create group", err)
	}
	if created {
		s.log.Info("group created", zap.String("group_id", groupID))
	}
	return nil
}

func (s *Syncer) getGroup(ctx context.Context, groupID string) (models.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	return s.groups.Get(ctx, groupID)
}

func (s *Syncer) userExists(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return false, failures.Store("check user", err)
	}
	return ok, nil
}

func (s *Syncer) ensureUser(ctx context.Context, groupID, userID string) error {
	ok, err := s.userExists(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	p, err := s.platform.GroupMemberProfile(ctx, groupID, userID)
	if err != nil {
		s.log.Debug("group member profile unavailable, trying user profile",
			zap.String("user_id", userID), zap.Error(err))
		p, err = s.platform.Profile(ctx, userID)
		if err != nil {
			return fmt.Errorf("fetch profile for %s: %w", userID, err)
		}
	}
	if p.UserID == "" {
		p.UserID = userID
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if err := s.users.UpsertProfile(ctx, p); err != nil {
		return failures.Store("upsert user", err)
	}
	return nil
}

func (s *Syncer) summary(ctx context.Context, groupID string) groupstore.Info {
	sum, err := s.platform.GroupSummary(ctx, groupID)
	if err != nil {
		s.log.Warn("group summary unavailable", zap.String("group_id", groupID), zap.Error(err))
		return groupstore.Info{}
	}
	return groupstore.Info{Name: sum.GroupName, PictureURL: sum.PictureURL}
}

func (s *Syncer) backfill(ctx context.Context, groupID, userID string) {
	res, err := s.links.AddMemberToGroupLinks(ctx, s.writer, groupID, userID)
	if err != nil {
		s.log.Error("link backfill lookup failed",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	s.metrics.Backfilled(res.Modified)
	if err := res.Err(); err != nil {
		s.log.Error("link backfill incomplete",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.Int("failed_chunks", res.Failed),
			zap.Int("chunks", res.Chunks),
			zap.Int64("modified", res.Modified),
			zap.Error(err))
		return
	}
	if res.Chunks > 0 {
		s.log.Info("links backfilled",
			zap.String("group_id", groupID),
			zap.String("user_id", userID),
			zap.Int64("modified", res.Modified))
	}
}
