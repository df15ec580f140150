// Package pdfclean removes the "NotebookLM" footer watermark from PDF
// documents by editing page content streams.
package pdfclean

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

var (
	ErrInputNotFound   = errors.New("input not found")
	ErrInputUnreadable = errors.New("input unreadable")
	ErrProcessing      = errors.New("processing failure")
)

const (
	DefaultText      = "NotebookLM"
	DefaultBoxWidth  = 150.0
	DefaultBoxHeight = 50.0
	DefaultBoxMargin = 5.0
)

// letter is used when a page carries no readable MediaBox.
var letter = [4]float64{0, 0, 612, 792}

// Options configures a Redactor.
type Options struct {
	// Text is the literal searched for in shown strings.
	Text string
	// Box is the corner rectangle painted on every page, in points.
	BoxWidth, BoxHeight, BoxMargin float64
	// Fill is the RGB colour of the box, each component in [0,1].
	Fill [3]float64
}

// DefaultOptions returns the NotebookLM footer settings with a white fill.
func DefaultOptions() Options {
	return Options{
		Text:      DefaultText,
		BoxWidth:  DefaultBoxWidth,
		BoxHeight: DefaultBoxHeight,
		BoxMargin: DefaultBoxMargin,
		Fill:      [3]float64{1, 1, 1},
	}
}

// Report summarises a redaction.
type Report struct {
	// TextHits counts shown strings that contained the text.
	TextHits int
	// Boxes counts painted corner boxes, one per page.
	Boxes int
	Pages int
}

// Redactions is the total number of redactions applied.
func (r Report) Redactions() int {
	return r.TextHits + r.Boxes
}

// Message renders the report for users.
func (r Report) Message() string {
	if r.Redactions() == 0 {
		return "no NotebookLM watermark detected, the original file was returned"
	}
	return fmt.Sprintf("processed successfully, %d NotebookLM watermark marks removed", r.Redactions())
}

// Redactor blanks the watermark text and paints over the footer corner.
type Redactor struct {
	opts Options
}

// NewRedactor creates a redactor. Zero-valued options fall back to defaults.
func NewRedactor(opts Options) *Redactor {
	def := DefaultOptions()
	if opts.Text == "" {
		opts.Text = def.Text
	}
	if opts.BoxWidth <= 0 {
		opts.BoxWidth = def.BoxWidth
	}
	if opts.BoxHeight <= 0 {
		opts.BoxHeight = def.BoxHeight
	}
	if opts.BoxMargin < 0 {
		opts.BoxMargin = def.BoxMargin
	}
	api.DisableConfigDir()
	return &Redactor{opts: opts}
}

type pageEdit struct {
	dict    types.Dict
	content []byte
	box     [4]float64
}

// Redact reads in and writes the cleaned document to out. When the text
// occurs nowhere in the document, out is a byte-identical copy of in.
func (r *Redactor) Redact(in, out string) (Report, error) {
	if _, err := os.Stat(in); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Report{}, fmt.Errorf("%w: %s", ErrInputNotFound, in)
		}
		return Report{}, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}

	ctx, err := api.ReadContextFile(in)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}

	report := Report{Pages: ctx.PageCount}
	edits := make([]pageEdit, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		pageDict, _, inherited, err := ctx.PageDict(nr, false)
		if err != nil {
			return Report{}, fmt.Errorf("%w: page %d: %v", ErrProcessing, nr, err)
		}
		content, err := pageContent(ctx, pageDict)
		if err != nil {
			return Report{}, fmt.Errorf("%w: page %d: %v", ErrProcessing, nr, err)
		}
		cleaned, hits := BlankText(content, r.opts.Text)
		report.TextHits += hits
		edits = append(edits, pageEdit{dict: pageDict, content: cleaned, box: mediaBox(pageDict, inherited)})
		log.Debug().Int("page", nr).Int("hits", hits).Msg("page scanned")
	}

	if report.TextHits == 0 {
		log.Info().Str("src", in).Msg("no watermark text found, copying original")
		return Report{Pages: report.Pages}, copyFile(in, out)
	}

	for _, e := range edits {
		buf := make([]byte, 0, len(e.content)+64)
		buf = append(buf, "q\n"...)
		buf = append(buf, e.content...)
		buf = append(buf, "\nQ\n"...)
		buf = append(buf, r.boxOperators(e.box)...)

		sd := types.StreamDict{Dict: types.NewDict(), Content: buf}
		if err := sd.Encode(); err != nil {
			return Report{}, fmt.Errorf("%w: encoding content: %v", ErrProcessing, err)
		}
		ref, err := ctx.IndRefForNewObject(sd)
		if err != nil {
			return Report{}, fmt.Errorf("%w: %v", ErrProcessing, err)
		}
		e.dict.Update("Contents", *ref)
		report.Boxes++
	}

	if err := api.WriteContextFile(ctx, out); err != nil {
		return Report{}, fmt.Errorf("%w: writing %s: %v", ErrProcessing, out, err)
	}
	log.Info().
		Str("src", in).
		Int("pages", report.Pages).
		Int("textHits", report.TextHits).
		Int("boxes", report.Boxes).
		Msg("pdf redacted")
	return report, nil
}

// boxOperators paints the footer rectangle anchored at the bottom-right of
// the media box.
func (r *Redactor) boxOperators(box [4]float64) string {
	x := box[2] - r.opts.BoxWidth - r.opts.BoxMargin
	y := box[1] + r.opts.BoxMargin
	f := r.opts.Fill
	return fmt.Sprintf("q %.3f %.3f %.3f rg %.2f %.2f %.2f %.2f re f Q\n",
		f[0], f[1], f[2], x, y, r.opts.BoxWidth, r.opts.BoxHeight)
}

// pageContent concatenates the decoded content streams of a page.
func pageContent(ctx *model.Context, pageDict types.Dict) ([]byte, error) {
	obj, found := pageDict.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}

	items := types.Array{obj}
	if arr, err := ctx.DereferenceArray(obj); err == nil && arr != nil {
		items = arr
	}

	var content []byte
	for _, item := range items {
		sd, _, err := ctx.DereferenceStreamDict(item)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, err
		}
		content = append(content, sd.Content...)
		content = append(content, '\n')
	}
	return content, nil
}

// mediaBox reads the page MediaBox, falling back to the inherited one and
// then to US Letter.
func mediaBox(pageDict types.Dict, inherited *model.InheritedPageAttrs) [4]float64 {
	if arr := pageDict.ArrayEntry("MediaBox"); len(arr) == 4 {
		var box [4]float64
		ok := true
		for i, o := range arr {
			v, isNum := number(o)
			box[i] = v
			ok = ok && isNum
		}
		if ok {
			return box
		}
	}
	if inherited != nil && inherited.MediaBox != nil {
		mb := inherited.MediaBox
		return [4]float64{mb.LL.X, mb.LL.Y, mb.UR.X, mb.UR.Y}
	}
	return letter
}

func number(o types.Object) (float64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create output: %v", ErrProcessing, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy: %v", ErrProcessing, err)
	}
	return out.Close()
}
