// Package report renders ILV reports as PDF documents.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"github.com/larscolombia/kapa/internal/models"
)

// ErrFontNotConfigured is returned when no TTF font path was given.
var ErrFontNotConfigured = errors.New("report font not configured")

const (
	marginX    = 40.0
	pageWidth  = 595.28 // A4 in points
	pageBottom = 800.0
	lineHeight = 16.0
)

type Data struct {
	Report      *models.IlvReport
	Fields      []models.IlvReportField
	Attachments []models.IlvAttachment
	Submissions []models.FormSubmission
	GeneratedAt time.Time
}

type Renderer struct {
	fontPath string
}

func NewRenderer(fontPath string) *Renderer {
	return &Renderer{fontPath: fontPath}
}

func (r *Renderer) Render(w io.Writer, d Data) error {
	if r.fontPath == "" {
		return ErrFontNotConfigured
	}
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := pdf.AddTTFFont("body", r.fontPath); err != nil {
		return fmt.Errorf("report: load font: %w", err)
	}
	pdf.AddPage()
	p := &page{pdf: pdf, y: 50}

	rep := d.Report
	if err := p.heading(fmt.Sprintf("%s  %s", rep.Number, rep.Title), 16); err != nil {
		return err
	}
	p.gap(6)

	rows := [][2]string{
		{"Tipo", string(rep.Tipo)},
		{"Estado", string(rep.Estado)},
		{"Fecha del evento", rep.EventDate.Format("2006-01-02 15:04")},
		{"Ubicación", rep.Location},
		{"Severidad", rep.Severity},
		{"Responsable", rep.ResponsibleEmail},
	}
	if rep.ClosedAt != nil {
		rows = append(rows,
			[2]string{"Cerrado", rep.ClosedAt.Format("2006-01-02 15:04")},
			[2]string{"Cerrado por", strings.TrimSpace(rep.ClosedByName + " " + rep.ClosedByEmail)},
			[2]string{"Notas de cierre", rep.CloseNotes})
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		if err := p.kv(row[0], row[1]); err != nil {
			return err
		}
	}

	if rep.Description != "" {
		p.gap(8)
		if err := p.heading("Descripción", 12); err != nil {
			return err
		}
		if err := p.text(rep.Description); err != nil {
			return err
		}
	}

	if len(d.Fields) > 0 {
		p.gap(8)
		if err := p.heading("Campos", 12); err != nil {
			return err
		}
		for _, f := range d.Fields {
			if err := p.kv(f.Key, f.Value); err != nil {
				return err
			}
		}
	}

	for _, s := range d.Submissions {
		p.gap(8)
		title := fmt.Sprintf("Formulario v%d (%s)", s.TemplateVersion, s.Status)
		if s.Score != nil && s.MaxScore != nil {
			title += fmt.Sprintf("  puntaje %.2f / %.2f", *s.Score, *s.MaxScore)
		}
		if err := p.heading(title, 12); err != nil {
			return err
		}
		for _, kv := range flattenData("", s.Data) {
			if err := p.kv(kv[0], kv[1]); err != nil {
				return err
			}
		}
	}

	if len(d.Attachments) > 0 {
		p.gap(8)
		if err := p.heading("Adjuntos", 12); err != nil {
			return err
		}
		for _, a := range d.Attachments {
			if err := p.text(fmt.Sprintf("%s (%s, %d KB)", a.FileName, a.ContentType, a.Size/1024)); err != nil {
				return err
			}
		}
	}

	generated := d.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	p.gap(12)
	if err := p.line(fmt.Sprintf("Generado %s", generated.UTC().Format(time.RFC3339)), 8); err != nil {
		return err
	}
	return pdf.Write(w)
}

type page struct {
	pdf *gopdf.GoPdf
	y   float64
}

func (p *page) ensure(h float64) {
	if p.y+h > pageBottom {
		p.pdf.AddPage()
		p.y = 50
	}
}

func (p *page) gap(h float64) { p.y += h }

func (p *page) heading(s string, size float64) error {
	return p.line(s, size)
}

func (p *page) line(s string, size float64) error {
	if err := p.pdf.SetFont("body", "", size); err != nil {
		return err
	}
	p.ensure(size + 4)
	p.pdf.SetXY(marginX, p.y)
	if err := p.pdf.Cell(nil, s); err != nil {
		return err
	}
	p.y += size + 6
	return nil
}

func (p *page) text(s string) error {
	if err := p.pdf.SetFont("body", "", 10); err != nil {
		return err
	}
	for _, para := range strings.Split(s, "\n") {
		lines, err := p.pdf.SplitText(para, pageWidth-2*marginX)
		if err != nil {
			lines = []string{para}
		}
		for _, l := range lines {
			p.ensure(lineHeight)
			p.pdf.SetXY(marginX, p.y)
			if err := p.pdf.Cell(nil, l); err != nil {
				return err
			}
			p.y += lineHeight
		}
	}
	return nil
}

func (p *page) kv(k, v string) error {
	return p.text(k + ": " + v)
}

// flattenData turns submission data into sorted label/value rows.
func flattenData(prefix string, m map[string]any) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out [][2]string
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := m[k].(type) {
		case map[string]any:
			out = append(out, flattenData(path, v)...)
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			out = append(out, [2]string{path, strings.Join(parts, ", ")})
		case nil:
		default:
			out = append(out, [2]string{path, fmt.Sprint(v)})
		}
	}
	return out
}
