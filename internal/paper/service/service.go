// Package service implements paper operations on top of the registry,
// ledger and attachment store, with per-role access checks.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/locks"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/paper/attachments"
	"github.com/paperdesk/paperdesk/internal/paper/ledger"
	"github.com/paperdesk/paperdesk/internal/paper/repository"
	"github.com/paperdesk/paperdesk/internal/paper/splitter"
	"github.com/paperdesk/paperdesk/internal/reviews"
	"github.com/paperdesk/paperdesk/internal/storage"
	"github.com/paperdesk/paperdesk/internal/users"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/paperdesk/paperdesk/pkg/metrics"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrUnknownSection = errors.New("unknown section")
	ErrEmptyUpload    = errors.New("empty upload")
	ErrTooLarge       = errors.New("paper attachments exceed the size limit")
)

// DefaultMaxAttachmentBytes keeps a paper well inside MongoDB's 16 MB
// document limit.
const DefaultMaxAttachmentBytes = 12 << 20

// Actor is the caller of an operation.
type Actor struct {
	Username string
	Role     users.Role
}

// Directory is the part of the users service the paper service needs.
type Directory interface {
	GetByUsername(ctx context.Context, username string) (*users.User, error)
	AddReviewer(ctx context.Context, username, name, password string, paperID int64) (*users.User, error)
}

// BlobStore mirrors attachment images to object storage.
type BlobStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	RemovePrefix(ctx context.Context, prefix string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Options configures a Service. Zero values select in-process defaults.
type Options struct {
	Locker     locks.Locker
	Ledger     *ledger.Ledger
	Blobs      BlobStore
	Statuses   []string
	LockWait   time.Duration
	PresignTTL time.Duration
	// MaxAttachmentBytes caps the total image bytes of one paper.
	MaxAttachmentBytes int
}

// Service is the paper business layer used by the HTTP handlers.
type Service struct {
	repo       repository.Repository
	users      Directory
	reviews    reviews.Repository
	locker     locks.Locker
	ledger     *ledger.Ledger
	blobs      BlobStore
	statuses   mapset.Set[string]
	statusList []string
	lockWait   time.Duration
	presignTTL time.Duration
	maxImages  int
}

func New(repo repository.Repository, dir Directory, revs reviews.Repository, opts Options) *Service {
	s := &Service{
		repo:       repo,
		users:      dir,
		reviews:    revs,
		locker:     opts.Locker,
		ledger:     opts.Ledger,
		blobs:      opts.Blobs,
		lockWait:   opts.LockWait,
		presignTTL: opts.PresignTTL,
		maxImages:  opts.MaxAttachmentBytes,
	}
	if s.locker == nil {
		s.locker = locks.NewMemory()
	}
	if s.ledger == nil {
		s.ledger = ledger.New()
	}
	if s.lockWait <= 0 {
		s.lockWait = 10 * time.Second
	}
	if s.presignTTL <= 0 {
		s.presignTTL = 15 * time.Minute
	}
	if s.maxImages <= 0 {
		s.maxImages = DefaultMaxAttachmentBytes
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		for _, st := range paper.DefaultStatuses() {
			statuses = append(statuses, string(st))
		}
	}
	s.statuses = mapset.NewSet[string](statuses...)
	s.statusList = append([]string(nil), statuses...)
	return s
}

// Statuses lists the accepted statuses in configured order.
func (s *Service) Statuses() []string {
	return append([]string(nil), s.statusList...)
}

// Create makes a new paper owned by the actor. Non-empty initial sections
// are recorded as a manual edit.
func (s *Service) Create(ctx context.Context, actor Actor, sections map[string]string) (*paper.Paper, error) {
	if actor.Role != users.RoleFaculty && actor.Role != users.RoleAdmin {
		return nil, fmt.Errorf("%w: only faculty can submit papers", ErrForbidden)
	}
	if err := checkSections(sections); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	p, _, err := s.mutate(ctx, created.ID, func(work *paper.Paper) (bool, error) {
		work.Status = paper.Status(s.statusList[0])
		s.apply(work, mergeSections(work.Sections, sections), actor, paper.SourceManualEdit)
		return true, nil
	})
	if err != nil {
		if derr := s.repo.Delete(context.WithoutCancel(ctx), created.ID); derr != nil {
			logger.Errorf("paper %d: remove after failed create: %v", created.ID, derr)
		}
		return nil, err
	}
	logger.Infof("paper %d created by %s", p.ID, actor.Username)
	return p, nil
}

// Get returns a paper the actor may view.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*paper.Paper, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, p, actor); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every paper for admins, own papers for faculty and the
// assigned paper for reviewers.
func (s *Service) List(ctx context.Context, actor Actor) ([]*paper.Paper, error) {
	switch actor.Role {
	case users.RoleAdmin:
		return s.repo.List(ctx)
	case users.RoleFaculty:
		return s.repo.ListFor(ctx, actor.Username)
	case users.RoleReviewer:
		assigned, err := s.assignedPaper(ctx, actor)
		if err != nil {
			return nil, err
		}
		p, err := s.repo.Get(ctx, assigned)
		if errors.Is(err, repository.ErrNotFound) {
			return []*paper.Paper{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*paper.Paper{p}, nil
	}
	return nil, ErrForbidden
}

// Delete removes the paper together with its attachments, reviews and
// mirrored blobs.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	release, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := canEdit(p, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.reviews.DeleteFor(ctx, id); err != nil {
		logger.Warnf("delete reviews of paper %d: %v", id, err)
	}
	if s.blobs != nil {
		if err := s.blobs.RemovePrefix(ctx, storage.PaperPrefix(id)); err != nil {
			logger.Warnf("remove blobs of paper %d: %v", id, err)
		}
	}
	logger.Infof("paper %d deleted by %s", id, actor.Username)
	return nil
}

// EditSections merges the partial section map over the current sections and
// records the differences as a manual edit.
func (s *Service) EditSections(ctx context.Context, actor Actor, id int64, partial map[string]string) (*paper.Paper, []ledger.Change, error) {
	if err := checkSections(partial); err != nil {
		return nil, nil, err
	}
	var changes []ledger.Change
	p, _, err := s.mutate(ctx, id, func(work *paper.Paper) (bool, error) {
		if err := canEdit(work, actor); err != nil {
			return false, err
		}
		changes = s.apply(work, mergeSections(work.Sections, partial), actor, paper.SourceManualEdit)
		return len(changes) > 0, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return p, changes, nil
}

// UploadResult summarises an applied upload.
type UploadResult struct {
	Changes   []ledger.Change `json:"changes"`
	NewImages int             `json:"newImages"`
	NewTables int             `json:"newTables"`
}

// ImportUpload reads an uploaded document, splits it into sections and
// merges the result into the paper as a document upload. A malformed upload
// leaves the paper untouched.
func (s *Service) ImportUpload(ctx context.Context, actor Actor, id int64, filename string, r io.Reader) (*paper.Paper, *UploadResult, error) {
	paras, err := ingest.ReadFile(r, filename)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupported):
			metrics.Uploads.WithLabelValues("unsupported").Inc()
		case errors.Is(err, ingest.ErrMalformed):
			metrics.Uploads.WithLabelValues("malformed").Inc()
		default:
			metrics.Uploads.WithLabelValues("error").Inc()
		}
		return nil, nil, err
	}
	split := splitter.Split(paras)

	res := &UploadResult{}
	p, before, err := s.mutate(ctx, id, func(work *paper.Paper) (bool, error) {
		if err := canEdit(work, actor); err != nil {
			return false, err
		}
		images, tables := len(work.Attachments.Images), len(work.Attachments.Tables)
		imageMap := make(map[int]int, len(split.Images))
		for i, data := range split.Images {
			imageMap[i+1] = work.Attachments.RegisterImage(data)
		}
		tableMap := make(map[int]int, len(split.Tables))
		for i, html := range split.Tables {
			tableMap[i+1] = work.Attachments.RegisterUploadedTable(html)
		}
		proposed := make(map[string]string, len(split.Sections))
		for name, content := range split.Sections {
			proposed[name] = attachments.Renumber(content, imageMap, tableMap)
		}
		res.Changes = s.apply(work, proposed, actor, paper.SourceDocumentUpload)
		res.NewImages = len(work.Attachments.Images) - images
		res.NewTables = len(work.Attachments.Tables) - tables
		return len(res.Changes) > 0 || res.NewImages > 0 || res.NewTables > 0, nil
	})
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, nil, err
	}
	if len(res.Changes) > 0 {
		metrics.Uploads.WithLabelValues("applied").Inc()
	} else {
		metrics.Uploads.WithLabelValues("unchanged").Inc()
	}
	s.mirrorImages(ctx, p, len(before.Attachments.Images))
	logger.WithFields(map[string]interface{}{
		"paper":    id,
		"file":     filename,
		"actor":    actor.Username,
		"sections": len(res.Changes),
		"images":   res.NewImages,
		"tables":   res.NewTables,
	}).Info("upload applied")
	return p, res, nil
}

// SetStatus changes the paper status to one of the configured statuses.
func (s *Service) SetStatus(ctx context.Context, actor Actor, id int64, status string) (*paper.Paper, error) {
	status = strings.TrimSpace(status)
	if !s.statuses.Contains(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	p, _, err := s.mutate(ctx, id, func(work *paper.Paper) (bool, error) {
		if err := canEdit(work, actor); err != nil {
			return false, err
		}
		if work.Status == paper.Status(status) {
			return false, nil
		}
		work.Status = paper.Status(status)
		work.UpdatedAt = time.Now().UTC()
		return true, nil
	})
	return p, err
}

// History returns the paper's history records in chronological order.
func (s *Service) History(ctx context.Context, actor Actor, id int64) ([]paper.HistoryRecord, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return p.History, nil
}

// Render returns every section with placeholders replaced by HTML. Images
// link to presigned blob URLs when a blob store is configured.
func (s *Service) Render(ctx context.Context, actor Actor, id int64) (map[string]string, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	r := attachments.HTMLRenderer{}
	if s.blobs != nil {
		r.URLFor = func(n int) (string, bool) {
			u, err := s.blobs.GetPresignedURL(ctx, storage.ImageKey(id, n), s.presignTTL)
			if err != nil {
				logger.Debugf("presign image %d of paper %d: %v", n, id, err)
				return "", false
			}
			return u, true
		}
	}
	out := make(map[string]string, len(p.Sections))
	for _, name := range paper.SectionNames() {
		out[name] = p.Attachments.Substitute(p.Sections[name], r)
	}
	return out, nil
}

// AddImage registers an image with the paper and returns its index. An
// identical image already present keeps its index.
func (s *Service) AddImage(ctx context.Context, actor Actor, id int64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyUpload
	}
	var n int
	p, before, err := s.mutate(ctx, id, func(work *paper.Paper) (bool, error) {
		if err := canEdit(work, actor); err != nil {
			return false, err
		}
		count := len(work.Attachments.Images)
		n = work.Attachments.RegisterImage(data)
		if n <= count {
			return false, nil
		}
		work.UpdatedAt = time.Now().UTC()
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	s.mirrorImages(ctx, p, len(before.Attachments.Images))
	return n, nil
}

// Image returns image n of a paper.
func (s *Service) Image(ctx context.Context, actor Actor, id int64, n int) (attachments.Image, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return attachments.Image{}, err
	}
	img, ok := p.Attachments.Image(n)
	if !ok {
		return attachments.Image{}, fmt.Errorf("%w: image %d", ErrNotFound, n)
	}
	return img, nil
}

// AddBlankTable appends an empty rows x cols table and returns its index.
func (s *Service) AddBlankTable(ctx context.Context, actor Actor, id int64, rows, cols int) (int, error) {
	var n int
	_, _, err := s.mutate(ctx, id, func(work *paper.Paper) (bool, error) {
		if err := canEdit(work, actor); err != nil {
			return false, err
		}
		var err error
		if n, err = work.Attachments.RegisterBlankTable(rows, cols); err != nil {
			return false, err
		}
		work.UpdatedAt = time.Now().UTC()
		return true, nil
	})
	return n, err
}

// AddReviewer creates a reviewer account assigned to an existing paper.
func (s *Service) AddReviewer(ctx context.Context, actor Actor, id int64, username, name, password string) (*users.User, error) {
	if actor.Role != users.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can add reviewers", ErrForbidden)
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.users.AddReviewer(ctx, username, name, password, id)
}

// AddReview stores a review by the reviewer assigned to the paper.
func (s *Service) AddReview(ctx context.Context, actor Actor, id int64, suggestions, overall string) (*reviews.Review, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if actor.Role != users.RoleReviewer {
		return nil, fmt.Errorf("%w: only reviewers can submit reviews", ErrForbidden)
	}
	assigned, err := s.assignedPaper(ctx, actor)
	if err != nil {
		return nil, err
	}
	if assigned != id {
		return nil, fmt.Errorf("%w: paper %d is not assigned to %s", ErrForbidden, id, actor.Username)
	}
	rv := &reviews.Review{
		PaperID:        id,
		Reviewer:       actor.Username,
		Suggestions:    suggestions,
		OverallComment: overall,
	}
	if err := s.reviews.Add(ctx, rv); err != nil {
		return nil, err
	}
	logger.Infof("review of paper %d added by %s", id, actor.Username)
	return rv, nil
}

// Reviews lists the reviews of a paper the actor may view.
func (s *Service) Reviews(ctx context.Context, actor Actor, id int64) ([]*reviews.Review, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.reviews.ListFor(ctx, id)
}

func (s *Service) lock(ctx context.Context, id int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	return s.locker.Lock(lockCtx, fmt.Sprintf("paper:%d", id))
}

// mutate runs fn on a copy of the stored paper under the paper lock and saves
// the copy when fn reports a change. It returns the resulting paper and the
// paper as it was before fn ran. On error nothing is saved.
func (s *Service) mutate(ctx context.Context, id int64, fn func(work *paper.Paper) (bool, error)) (*paper.Paper, *paper.Paper, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	before, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	work := before.Clone()
	changed, err := fn(work)
	if err != nil {
		return nil, nil, err
	}
	if !changed {
		return before, before, nil
	}
	// papers already over the cap stay editable as long as they do not grow
	if n := work.Attachments.ImageBytes(); n > s.maxImages && n > before.Attachments.ImageBytes() {
		return nil, nil, fmt.Errorf("%w: %d bytes of images, limit %d", ErrTooLarge, n, s.maxImages)
	}
	if err := s.repo.Save(ctx, work); err != nil {
		return nil, nil, fmt.Errorf("save paper %d: %w", id, err)
	}
	return work, before, nil
}

func (s *Service) apply(work *paper.Paper, proposed map[string]string, actor Actor, source string) []ledger.Change {
	changes := s.ledger.ApplyChanges(work, proposed, actor.Username, source)
	if len(changes) > 0 {
		metrics.HistoryRecords.WithLabelValues(source).Add(float64(len(changes)))
	}
	return changes
}

func (s *Service) load(ctx context.Context, id int64) (*paper.Paper, error) {
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: paper %d", ErrNotFound, id)
	}
	return p, err
}

func (s *Service) mirrorImages(ctx context.Context, p *paper.Paper, from int) {
	if s.blobs == nil {
		return
	}
	for i := from; i < len(p.Attachments.Images); i++ {
		img := p.Attachments.Images[i]
		key := storage.ImageKey(p.ID, i+1)
		if err := s.blobs.UploadFile(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.ContentType); err != nil {
			logger.Warnf("mirror %s: %v", key, err)
		}
	}
}

func (s *Service) assignedPaper(ctx context.Context, actor Actor) (int64, error) {
	u, err := s.users.GetByUsername(ctx, actor.Username)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, nil
	}
	return u.AssignedPaperID, nil
}

func (s *Service) canView(ctx context.Context, p *paper.Paper, actor Actor) error {
	switch actor.Role {
	case users.RoleAdmin:
		return nil
	case users.RoleReviewer:
		assigned, err := s.assignedPaper(ctx, actor)
		if err != nil {
			return err
		}
		if assigned == p.ID {
			return nil
		}
	default:
		if p.Owner == actor.Username {
			return nil
		}
	}
	return fmt.Errorf("%w: paper %d", ErrForbidden, p.ID)
}

func canEdit(p *paper.Paper, actor Actor) error {
	if actor.Role == users.RoleAdmin {
		return nil
	}
	if actor.Role == users.RoleFaculty && p.Owner == actor.Username {
		return nil
	}
	return fmt.Errorf("%w: paper %d", ErrForbidden, p.ID)
}

func checkSections(sections map[string]string) error {
	for name := range sections {
		if !paper.IsSection(name) {
			return fmt.Errorf("%w: %q", ErrUnknownSection, name)
		}
	}
	return nil
}

// mergeSections overlays partial on current; sections not named keep their
// current content.
func mergeSections(current, partial map[string]string) map[string]string {
	out := make(map[string]string, len(current))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}
