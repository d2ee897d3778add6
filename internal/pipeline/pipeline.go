// Package pipeline turns an inbound chat message into a translated reply:
// admission, optional image text extraction, translation, recording and
// delivery. Every stage after admission fails soft.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/gate"
	"github.com/blikh/discord-translation-relay/internal/history"
	"github.com/blikh/discord-translation-relay/internal/metrics"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/stats"
	"github.com/blikh/discord-translation-relay/internal/store"
)

// Outcome is the terminal state of one message.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeDelivered   Outcome = "delivered"
	OutcomeFailed      Outcome = "failed"
	OutcomeUndelivered Outcome = "undelivered"
)

// DirectSource is the channel and author recorded for translations requested
// outside the chat path.
const DirectSource = "dashboard"

// Reply field names.
const (
	FieldExtracted     = "📷 Extracted Text"
	FieldOCRTranslated = "📷 Translated (%s)"
	FieldOriginal      = "Original"
	FieldTranslated    = "Translated (%s)"
)

// ErrNoText is returned when an image yields no text.
var ErrNoText = errors.New("no text found in image")

// Platform is what the pipeline needs from the messaging platform.
type Platform interface {
	gate.RoleFetcher
	Download(ctx context.Context, url string) ([]byte, error)
	Reply(ctx context.Context, msg chat.Message, reply chat.Reply) error
}

// Archiver stores completed translations beyond the in-memory history.
type Archiver interface {
	AddTranslation(ctx context.Context, r history.Record) error
}

// Deps are the collaborators of a Pipeline. Archive is optional.
type Deps struct {
	Store     *store.Store
	Gate      *gate.Gate
	Registry  *provider.Registry
	Directory *directory.Lookup
	History   *history.Log
	Stats     *stats.Aggregator
	Events    *eventlog.Log
	Archive   Archiver
	Platform  Platform
}

// Pipeline processes inbound messages.
type Pipeline struct {
	Deps
	logger *slog.Logger
}

// New creates a pipeline.
func New(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{Deps: deps, logger: logger}
}

// result of one translation stage.
type result struct {
	original   string
	translated string
	err        error
}

// Handle runs msg through the pipeline. The configuration snapshot taken at
// admission is used for the whole run, even if the store changes meanwhile.
func (p *Pipeline) Handle(ctx context.Context, msg chat.Message) Outcome {
	st := p.Store.Snapshot()
	d := p.Gate.Evaluate(ctx, msg, st)
	if !d.Proceed {
		metrics.AdmissionRejects.WithLabelValues(string(d.Reason)).Inc()
		if d.Route.ChannelID != "" {
			p.Events.Debug(fmt.Sprintf("Skipped message %s in #%s from %s: %s",
				msg.ID, d.Route.ChannelName, msg.AuthorName, d.Reason))
		}
		return p.done(OutcomeSkipped)
	}

	settings := store.SettingsFrom(st)
	language := d.Route.Language
	channel := p.channelName(ctx, msg, d.Route)
	p.Events.Debug(fmt.Sprintf("Processing message %s in #%s from %s (ocr=%v)", msg.ID, channel, msg.AuthorName, d.OCR))

	var (
		extracted  string
		extractErr error
	)
	if d.OCR {
		extracted, extractErr = p.extractAttachment(ctx, msg, settings)
		if extractErr != nil {
			p.logger.Warn("pipeline: text extraction failed", "message_id", msg.ID, "err", extractErr)
			p.Events.Error(fmt.Sprintf("OCR failed: %v", extractErr))
		} else if extracted != "" {
			p.Events.OCR(fmt.Sprintf("#%s: %s - Extracted text from image", channel, msg.AuthorName))
		}
	}

	var (
		wg       sync.WaitGroup
		ocrRes   *result
		textRes  *result
		rec      = history.Record{Language: language, Channel: channel, Author: msg.AuthorName}
		attempts int
	)
	run := func(dst **result, text string, ocr bool) {
		attempts++
		r := &result{original: text}
		*dst = r
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.translated, r.err = p.translate(ctx, settings, text, rec, ocr)
		}()
	}
	if extracted != "" {
		run(&ocrRes, extracted, true)
	}
	if strings.TrimSpace(msg.Content) != "" {
		run(&textRes, msg.Content, false)
	}
	wg.Wait()

	if attempts == 0 && extractErr == nil {
		p.Events.Debug(fmt.Sprintf("Nothing to translate in message %s", msg.ID))
		return p.done(OutcomeSkipped)
	}

	var fields []chat.Field
	if ocrRes != nil && ocrRes.err == nil {
		fields = append(fields,
			chat.Field{Name: FieldExtracted, Value: chat.Truncate(ocrRes.original)},
			chat.Field{Name: fmt.Sprintf(FieldOCRTranslated, language), Value: chat.Truncate(ocrRes.translated)},
		)
	}
	if textRes != nil && textRes.err == nil {
		fields = append(fields,
			chat.Field{Name: FieldOriginal, Value: chat.Truncate(textRes.original)},
			chat.Field{Name: fmt.Sprintf(FieldTranslated, language), Value: chat.Truncate(textRes.translated)},
		)
	}
	if len(fields) == 0 {
		return p.done(OutcomeFailed)
	}

	author := p.author(ctx, msg)
	reply := chat.Reply{AuthorName: author.Name, AuthorIcon: author.Avatar, Fields: fields}
	if err := p.Platform.Reply(ctx, msg, reply); err != nil {
		p.logger.Error("pipeline: failed to send reply", "message_id", msg.ID, "channel_id", msg.ChannelID, "err", err)
		p.Events.Error(fmt.Sprintf("Failed to send translation in #%s: %v", channel, err))
		return p.done(OutcomeUndelivered)
	}

	suffix := ""
	if ocrRes != nil && ocrRes.err == nil {
		suffix = " (OCR)"
	}
	p.Events.Translation(fmt.Sprintf("#%s: %s → %s%s", channel, msg.AuthorName, language, suffix))
	return p.done(OutcomeDelivered)
}

func (p *Pipeline) done(o Outcome) Outcome {
	metrics.MessagesTotal.WithLabelValues(string(o)).Inc()
	return o
}

func (p *Pipeline) channelName(ctx context.Context, msg chat.Message, route store.ChannelRoute) string {
	if msg.ChannelName != "" {
		return msg.ChannelName
	}
	if route.ChannelName != "" {
		return route.ChannelName
	}
	if p.Directory == nil {
		return directory.Unknown
	}
	return p.Directory.ChannelName(ctx, msg.GuildID, msg.ChannelID)
}

func (p *Pipeline) author(ctx context.Context, msg chat.Message) directory.User {
	u := directory.User{Name: msg.AuthorName, Avatar: msg.AuthorIcon}
	if p.Directory == nil {
		return u
	}
	if du := p.Directory.User(ctx, msg.AuthorID); du.Name != directory.Unknown {
		if u.Name == "" {
			u.Name = du.Name
		}
		if du.Avatar != "" {
			u.Avatar = du.Avatar
		}
	}
	return u
}

func (p *Pipeline) extractAttachment(ctx context.Context, msg chat.Message, settings provider.Settings) (string, error) {
	img, ok := msg.FirstImage()
	if !ok {
		return "", nil
	}
	data, err := p.Platform.Download(ctx, img.URL)
	if err != nil {
		return "", fmt.Errorf("pipeline: download %s: %w", img.Filename, err)
	}
	return p.Registry.ExtractText(ctx, settings, base64.StdEncoding.EncodeToString(data))
}

// translate calls the registry and records a successful translation. rec
// carries the language, channel and author.
func (p *Pipeline) translate(ctx context.Context, settings provider.Settings, text string, rec history.Record, ocr bool) (string, error) {
	out, err := p.Registry.Translate(ctx, settings, text, rec.Language)
	if err != nil {
		p.logger.Warn("pipeline: translation failed", "language", rec.Language, "ocr", ocr, "err", err)
		if provider.IsConfigError(err) {
			p.Events.Error(fmt.Sprintf("Provider not configured: %v", err))
		} else {
			p.Events.Error(fmt.Sprintf("Translation failed: %v", err))
		}
		return "", err
	}

	rec.Original = text
	rec.Translated = out
	rec.OCR = ocr
	p.record(ctx, rec)
	return out, nil
}

func (p *Pipeline) record(ctx context.Context, rec history.Record) {
	rec = p.History.Add(rec)
	p.Stats.Record(rec.Language)
	source := "text"
	if rec.OCR {
		source = "ocr"
	}
	metrics.TranslationsTotal.WithLabelValues(source).Inc()

	if p.Archive == nil {
		return
	}
	// The archive write must not be cancelled with the message context.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Archive.AddTranslation(actx, rec); err != nil {
		p.logger.Error("pipeline: failed to archive translation", "id", rec.ID, "err", err)
	}
}

// TranslateText translates text with the active provider outside the chat
// path.
func (p *Pipeline) TranslateText(ctx context.Context, text, language string) (string, error) {
	return p.translate(ctx, p.Store.ProviderSettings(), text,
		history.Record{Language: language, Channel: DirectSource, Author: DirectSource}, false)
}

// ExtractText extracts the text of a base64 encoded image.
func (p *Pipeline) ExtractText(ctx context.Context, imageBase64 string) (string, error) {
	out, err := p.Registry.ExtractText(ctx, p.Store.ProviderSettings(), imageBase64)
	if err != nil {
		p.Events.Error(fmt.Sprintf("OCR failed: %v", err))
		return "", err
	}
	return out, nil
}

// ExtractAndTranslate extracts the text of an image and translates it.
func (p *Pipeline) ExtractAndTranslate(ctx context.Context, imageBase64, language string) (extracted, translated string, err error) {
	settings := p.Store.ProviderSettings()
	extracted, err = p.Registry.ExtractText(ctx, settings, imageBase64)
	if err != nil {
		p.Events.Error(fmt.Sprintf("OCR failed: %v", err))
		return "", "", err
	}
	if extracted == "" {
		return "", "", ErrNoText
	}
	translated, err = p.translate(ctx, settings, extracted,
		history.Record{Language: language, Channel: DirectSource, Author: DirectSource}, true)
	if err != nil {
		return extracted, "", err
	}
	return extracted, translated, nil
}
