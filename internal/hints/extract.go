package hints

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/llehouerou/notifyd/internal/animation"
	"github.com/llehouerou/notifyd/internal/imaging"
	"github.com/llehouerou/notifyd/internal/linkify"
	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/sanitize"
)

const (
	MaxActions     = 16
	MaxSummarySize = 1 << 10
	MaxBodySize    = 64 << 10

	sniffSize = 512
)

// Options are the content settings in effect for one extraction.
type Options struct {
	ShowImages       bool
	ShowActions      bool
	EnableLinks      bool
	EnableAnimations bool
	MaxImageSize     int
}

// DefaultOptions enables everything with 128px images.
func DefaultOptions() Options {
	return Options{
		ShowImages:       true,
		ShowActions:      true,
		EnableLinks:      true,
		EnableAnimations: true,
		MaxImageSize:     imaging.DefaultMaxDimension,
	}
}

// Input is the unprocessed content of a request.
type Input struct {
	Summary string
	Body    string
	Actions []string
	Table   Table
}

// Result is the enriched content ready to commit.
type Result struct {
	Summary string
	Body    string
	Links   []notify.Link
	Actions []notify.Action
	Hints   notify.Hints
	// Degraded lists the fields that were dropped or truncated.
	Degraded []string
}

// Extractor enriches request content. It is safe for concurrent use.
type Extractor struct {
	cache *imaging.Cache
	log   zerolog.Logger
}

// NewExtractor creates an Extractor. cache may be nil.
func NewExtractor(cache *imaging.Cache, log zerolog.Logger) *Extractor {
	return &Extractor{cache: cache, log: log}
}

// Extract sanitizes text, detects links, parses actions and decodes the
// first usable image. Failures degrade the affected field only.
func (e *Extractor) Extract(ctx context.Context, in Input, opts Options) Result {
	res := Result{Hints: in.Table.Hints}
	for _, key := range in.Table.Invalid {
		res.Degraded = append(res.Degraded, "hint "+key)
	}

	res.Summary = sanitize.Strip(sanitize.Truncate(in.Summary, MaxSummarySize))
	if len(in.Body) > MaxBodySize {
		res.Degraded = append(res.Degraded, "body truncated")
	}
	res.Body = sanitize.Sanitize(sanitize.Truncate(in.Body, MaxBodySize))
	if opts.EnableLinks {
		if !e.guard("links", &res, func() { res.Links = linkify.Detect(res.Body) }) {
			res.Links = nil
		}
	}

	if opts.ShowActions {
		res.Actions = ParseActions(in.Actions)
		for i := range res.Actions {
			res.Actions[i].Label = sanitize.Strip(res.Actions[i].Label)
		}
	}

	if opts.ShowImages {
		e.decodeImage(ctx, in.Table.Images, opts, &res)
	}
	return res
}

// guard runs fn, recovering a panic as a degraded field.
func (e *Extractor) guard(field string, res *Result, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("field", field).Interface("panic", r).Msg("enrichment panicked")
			res.Degraded = append(res.Degraded, field)
			ok = false
		}
	}()
	fn()
	return true
}

func (e *Extractor) decodeImage(ctx context.Context, sources []ImageSource, opts Options, res *Result) {
	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		var (
			img  *notify.Image
			anim *notify.Animation
			err  error
		)
		e.guard("image", res, func() {
			img, anim, err = e.load(ctx, src, opts)
		})
		if err != nil {
			e.log.Debug().Err(err).Stringer("source", src).Msg("image dropped")
			res.Degraded = append(res.Degraded, "image "+src.String())
			continue
		}
		if img == nil && anim == nil {
			continue
		}
		res.Hints.Image, res.Hints.Animation = img, anim
		return
	}
}

func (e *Extractor) load(ctx context.Context, src ImageSource, opts Options) (*notify.Image, *notify.Animation, error) {
	switch src.Kind {
	case SourceRaw:
		raw, err := imaging.FromRaw(src.Raw, opts.MaxImageSize)
		if err != nil {
			return nil, nil, err
		}
		return &notify.Image{Kind: notify.ImageRaw, Raw: raw}, nil, nil
	case SourcePath:
		return e.loadFile(ctx, src.Path, opts)
	case SourceName:
		return &notify.Image{Kind: notify.ImageNamed, Name: src.Name}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown image source %d", src.Kind)
}

func (e *Extractor) loadFile(ctx context.Context, path string, opts Options) (*notify.Image, *notify.Animation, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	head, err := readHead(path)
	if err != nil {
		return nil, nil, err
	}
	if animation.Sniff(head) != animation.FormatUnknown {
		anim, err := animation.DecodeFile(ctx, path, animation.Options{
			MaxDimension: opts.MaxImageSize,
			Animate:      opts.EnableAnimations,
		})
		if err != nil {
			return nil, nil, err
		}
		if len(anim.Frames) > 1 {
			return nil, anim, nil
		}
		first := anim.Frames[0].Image
		return &notify.Image{Kind: notify.ImageFile, Path: path, Raw: &first}, nil, nil
	}
	raw, err := e.cache.Load(path, opts.MaxImageSize)
	if err != nil {
		return nil, nil, err
	}
	return &notify.Image{Kind: notify.ImageFile, Path: path, Raw: raw}, nil, nil
}

// readHead reads enough of a file to sniff its format.
func readHead(path string) ([]byte, error) {
	f, _, err := imaging.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", imaging.ErrUnavailable, err)
	}
	return buf[:n], nil
}
