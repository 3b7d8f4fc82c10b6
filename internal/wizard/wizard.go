// Package wizard - пошаговая подача обращения: съемка, описание, подтверждение.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shenikar/civic_issue_reporter/internal/capture"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTitle   = "Reported issue"
	DefaultAddress = "Current location"
	DefaultWardID  = "ward-1"
	OfflineNotice  = "Saved offline, will retry"
	LocatingLabel  = "Locating..."
)

var (
	ErrPhotoRequired       = errors.New("photo is required")
	ErrDescriptionRequired = errors.New("description is required")
	ErrPositionRequired    = errors.New("location is not resolved yet")
	ErrInvalidTransition   = errors.New("action is not allowed in the current step")
	ErrSubmitInProgress    = errors.New("submission already in progress")
	ErrInvalidCategory     = errors.New("unknown category")
)

// State - шаг мастера
type State int

const (
	Idle State = iota
	Capturing
	Describing
	Confirming
	Submitted
	Queued
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Describing:
		return "describing"
	case Confirming:
		return "confirming"
	case Submitted:
		return "submitted"
	case Queued:
		return "queued"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Locator - источник координат (capture.GeoCapture)
type Locator interface {
	RequestPosition(ctx context.Context) (models.GeoPosition, error)
}

// Media - камера и выбор файла (capture.MediaCapture)
type Media interface {
	OpenStream(ctx context.Context) (*capture.LiveVideoHandle, error)
	CaptureFrame(h *capture.LiveVideoHandle) (*models.CapturedMedia, error)
	PickFile(ctx context.Context) (*models.CapturedMedia, error)
	Release()
}

// Tagger записывает координаты в снимок (geotag.Geotagger)
type Tagger interface {
	Embed(media *models.CapturedMedia, pos models.GeoPosition) *models.CapturedMedia
}

// Submitter отправляет обращение (client.IssueClient)
type Submitter interface {
	CreateIssue(ctx context.Context, payload models.CreateIssuePayload) (*models.Issue, error)
}

// Enqueuer сохраняет неотправленное обращение (offline.Queue)
type Enqueuer interface {
	Enqueue(ctx context.Context, payload models.CreateIssuePayload) error
}

// Options - необязательные параметры мастера
type Options struct {
	WardID    string
	UserID    string
	OnCreated func(issue *models.Issue)
	OnNotice  func(notice string)
}

// Draft - черновик обращения, собираемый по шагам
type Draft struct {
	Title       string
	Description string
	Category    models.IssueCategory
	Address     string
	Photo       *models.CapturedMedia
}

// Outcome - итог отправки
type Outcome struct {
	State  State
	Issue  *models.Issue
	Notice string
}

// Actions - какие действия сейчас доступны. Недоступное действие - это
// ValidationFailure, а не ошибка.
type Actions struct {
	Capture bool
	Upload  bool
	Next    bool
	Back    bool
	Submit  bool
}

// Confirmation - данные экрана подтверждения
type Confirmation struct {
	Category    models.IssueCategory
	Location    string
	Title       string
	Description string
	Address     string
	HasPhoto    bool
	Geotagged   bool
}

// Wizard - конечный автомат Idle -> Capturing -> Describing -> Confirming -> (Submitted | Queued) -> Idle
type Wizard struct {
	locator   Locator
	media     Media
	tagger    Tagger
	submitter Submitter
	queue     Enqueuer
	opts      Options
	logger    *logrus.Logger

	mu         sync.Mutex
	state      State
	session    uint64
	sessionCtx context.Context
	cancel     context.CancelFunc
	draft      Draft
	position   *models.GeoPosition
	stream     *capture.LiveVideoHandle
	warnings   []Warning
	submitting bool

	pending sync.WaitGroup
}

func New(locator Locator, media Media, tagger Tagger, submitter Submitter, queue Enqueuer, opts Options, logger *logrus.Logger) *Wizard {
	if opts.WardID == "" {
		opts.WardID = DefaultWardID
	}
	return &Wizard{
		locator:   locator,
		media:     media,
		tagger:    tagger,
		submitter: submitter,
		queue:     queue,
		opts:      opts,
		logger:    logger,
	}
}

// Open начинает новую сессию: параллельно запрашивает позицию и открывает камеру.
// Не блокирует; ошибки каналов попадают в Warnings.
func (w *Wizard) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Idle {
		return ErrInvalidTransition
	}

	w.session++
	w.sessionCtx, w.cancel = context.WithCancel(ctx)
	w.state = Capturing
	w.draft = Draft{Category: models.CategoryPothole}
	w.position = nil
	w.stream = nil
	w.warnings = nil

	w.logger.WithField("session", w.session).Debug("Report wizard opened")

	w.startLocateLocked()
	w.startStreamLocked()
	return nil
}

// Wait блокируется, пока не завершатся запущенные запросы позиции и камеры
func (w *Wizard) Wait() {
	w.pending.Wait()
}

func (w *Wizard) startLocateLocked() {
	ctx, session := w.sessionCtx, w.session
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		pos, err := w.locator.RequestPosition(ctx)

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.session != session || w.state == Idle {
			return
		}
		if err != nil {
			w.addWarningLocked(ChannelLocation, err)
			return
		}
		w.clearWarningLocked(ChannelLocation)
		w.position = &pos
		w.tagPhotoLocked()
	}()
}

func (w *Wizard) startStreamLocked() {
	ctx, session := w.sessionCtx, w.session
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		h, err := w.media.OpenStream(ctx)

		w.mu.Lock()
		stale := w.session != session || w.state != Capturing
		if !stale {
			if err != nil {
				w.addWarningLocked(ChannelCamera, err)
			} else {
				w.clearWarningLocked(ChannelCamera)
				w.stream = h
			}
		}
		w.mu.Unlock()

		// поток открылся после выхода со съемки
		if stale && h != nil {
			h.Stop()
		}
	}()
}

// RetryPosition повторно запрашивает позицию, если она еще не получена
func (w *Wizard) RetryPosition() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Idle {
		return ErrInvalidTransition
	}
	if w.position != nil {
		return nil
	}
	w.startLocateLocked()
	return nil
}

// Capture делает снимок с открытой камеры
func (w *Wizard) Capture() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Capturing {
		return ErrInvalidTransition
	}
	if w.stream == nil {
		return capture.ErrNoActiveStream
	}

	media, err := w.media.CaptureFrame(w.stream)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to capture frame")
		return err
	}
	w.setPhotoLocked(media)
	return nil
}

// Upload выбирает готовый снимок через файловый диалог
func (w *Wizard) Upload(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Capturing {
		w.mu.Unlock()
		return ErrInvalidTransition
	}
	session := w.session
	w.mu.Unlock()

	media, err := w.media.PickFile(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session != session || w.state != Capturing {
		return ErrInvalidTransition
	}
	w.setPhotoLocked(media)
	return nil
}

func (w *Wizard) setPhotoLocked(media *models.CapturedMedia) {
	w.draft.Photo = media
	w.tagPhotoLocked()
}

// tagPhotoLocked записывает координаты в снимок, если есть и то и другое
func (w *Wizard) tagPhotoLocked() {
	if w.draft.Photo == nil || w.draft.Photo.GeoTag != nil || w.position == nil {
		return
	}
	w.draft.Photo = w.tagger.Embed(w.draft.Photo, *w.position)
}

func (w *Wizard) SetTitle(title string) error {
	return w.edit(func(d *Draft) { d.Title = title })
}

func (w *Wizard) SetDescription(description string) error {
	return w.edit(func(d *Draft) { d.Description = description })
}

func (w *Wizard) SetAddress(address string) error {
	return w.edit(func(d *Draft) { d.Address = address })
}

func (w *Wizard) SetCategory(category models.IssueCategory) error {
	for _, c := range models.Categories {
		if c == category {
			return w.edit(func(d *Draft) { d.Category = category })
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
}

func (w *Wizard) edit(fn func(d *Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Idle {
		return ErrInvalidTransition
	}
	fn(&w.draft)
	return nil
}

// Next переходит к следующему шагу, если выполнено условие текущего
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Capturing:
		if w.draft.Photo == nil {
			return ErrPhotoRequired
		}
		w.releaseStreamLocked()
		w.state = Describing
	case Describing:
		if w.draft.Description == "" {
			return ErrDescriptionRequired
		}
		w.state = Confirming
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Back возвращает на предыдущий шаг. Возврат к съемке снова открывает камеру.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Describing:
		w.state = Capturing
		w.startStreamLocked()
	case Confirming:
		w.state = Describing
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Submit отправляет обращение. При любой ошибке отправки обращение ставится
// в офлайн-очередь, и это считается мягким успехом.
func (w *Wizard) Submit(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	if w.state != Confirming {
		w.mu.Unlock()
		return Outcome{}, ErrInvalidTransition
	}
	if w.submitting {
		w.mu.Unlock()
		return Outcome{}, ErrSubmitInProgress
	}
	if w.position == nil {
		w.mu.Unlock()
		return Outcome{}, ErrPositionRequired
	}
	payload := w.payloadLocked()
	session := w.session
	w.submitting = true
	w.mu.Unlock()

	log := w.logger.WithFields(logrus.Fields{
		"method":   "Submit",
		"session":  session,
		"category": payload.Category,
	})

	issue, err := w.submitter.CreateIssue(ctx, payload)
	if err == nil {
		w.finish(session, Submitted)
		log.WithField("issue_id", issue.ID).Info("Issue submitted")
		if w.opts.OnCreated != nil {
			w.opts.OnCreated(issue)
		}
		return Outcome{State: Submitted, Issue: issue}, nil
	}

	log.WithError(err).Warn("Submission failed, queueing for retry")
	if qerr := w.queue.Enqueue(context.WithoutCancel(ctx), payload); qerr != nil {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
		log.WithError(qerr).Error("Failed to queue submission")
		return Outcome{}, fmt.Errorf("wizard: submission failed and could not be queued: %w", errors.Join(err, qerr))
	}

	w.finish(session, Queued)
	if w.opts.OnNotice != nil {
		w.opts.OnNotice(OfflineNotice)
	}
	return Outcome{State: Queued, Notice: OfflineNotice}, nil
}

// finish фиксирует терминальное состояние и закрывает сессию, если ее не закрыли раньше
func (w *Wizard) finish(session uint64, terminal State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if w.session != session {
		return
	}
	w.state = terminal
	w.closeLocked()
}

func (w *Wizard) payloadLocked() models.CreateIssuePayload {
	d := w.draft
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = DefaultTitle
	}
	address := strings.TrimSpace(d.Address)
	if address == "" {
		address = DefaultAddress
	}
	return models.CreateIssuePayload{
		Title:       title,
		Description: d.Description,
		Category:    d.Category,
		Location:    w.position.Point(),
		Address:     address,
		WardID:      w.opts.WardID,
		PhotoBase64: d.Photo.DataURL(),
		UserID:      w.opts.UserID,
	}
}

// Close закрывает мастер с любого шага. Камера освобождается, результаты
// незавершенных запросов игнорируются.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Idle {
		return
	}
	w.closeLocked()
}

func (w *Wizard) closeLocked() {
	w.session++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.releaseStreamLocked()
	w.state = Idle
	w.draft = Draft{}
	w.position = nil
	w.warnings = nil
}

// releaseStreamLocked - все пути выхода со съемки идут через MediaCapture.Release
func (w *Wizard) releaseStreamLocked() {
	w.stream = nil
	w.media.Release()
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft возвращает копию черновика
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Position возвращает полученную позицию или nil
func (w *Wizard) Position() *models.GeoPosition {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.position == nil {
		return nil
	}
	p := *w.position
	return &p
}

func (w *Wizard) Actions() Actions {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Actions{
		Capture: w.state == Capturing && w.stream != nil,
		Upload:  w.state == Capturing,
		Next: (w.state == Capturing && w.draft.Photo != nil) ||
			(w.state == Describing && w.draft.Description != ""),
		Back:   w.state == Describing || w.state == Confirming,
		Submit: w.state == Confirming && w.position != nil && !w.submitting,
	}
}

// Confirmation собирает данные для последнего шага
func (w *Wizard) Confirmation() Confirmation {
	w.mu.Lock()
	defer w.mu.Unlock()

	c := Confirmation{
		Category:    w.draft.Category,
		Location:    LocatingLabel,
		Title:       w.draft.Title,
		Description: w.draft.Description,
		Address:     w.draft.Address,
		HasPhoto:    w.draft.Photo != nil,
		Geotagged:   w.draft.Photo != nil && w.draft.Photo.GeoTag != nil,
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = DefaultTitle
	}
	if w.position != nil {
		c.Location = fmt.Sprintf("%.4f, %.4f", w.position.Latitude, w.position.Longitude)
	}
	return c
}
