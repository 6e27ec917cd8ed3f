package render

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/tadcs/certportal/internal/domain"
)

const (
	qrSize     = 256
	fontFamily = "certificate"
)

// Renderer draws QR codes pointing at the public verification page and the
// printable certificate.
type Renderer struct {
	origin       string
	organization string
	regular      []byte
	bold         []byte
	now          func() time.Time
}

type Option func(*Renderer)

// WithFonts replaces the embedded Go fonts with TrueType fonts covering
// other scripts.
func WithFonts(regular, bold []byte) Option {
	return func(r *Renderer) {
		r.regular = regular
		r.bold = bold
	}
}

// FontFiles reads a regular and a bold TrueType font from disk. An empty
// bold path reuses the regular face.
func FontFiles(regularPath, boldPath string) (Option, error) {
	regular, err := os.ReadFile(regularPath)
	if err != nil {
		return nil, errors.Wrap(err, "read certificate font")
	}
	bold := regular
	if boldPath != "" {
		bold, err = os.ReadFile(boldPath)
		if err != nil {
			return nil, errors.Wrap(err, "read certificate bold font")
		}
	}
	return WithFonts(regular, bold), nil
}

func NewRenderer(origin, organization string, opts ...Option) *Renderer {
	if organization == "" {
		organization = "TADCS Institute"
	}
	r := &Renderer{
		origin:       strings.TrimRight(origin, "/"),
		organization: organization,
		regular:      goregular.TTF,
		bold:         gobold.TTF,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// VerificationURL is the link encoded into every QR code.
func (r *Renderer) VerificationURL(certificateID string) string {
	return r.origin + "/certificate/" + certificateID
}

func (r *Renderer) QRCode(certificateID string) ([]byte, error) {
	png, err := qrcode.Encode(r.VerificationURL(certificateID), qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr code")
	}
	return png, nil
}

// CertificatePDF lays out an A4 landscape certificate of completion with
// the QR code between the two signature lines.
func (r *Renderer) CertificatePDF(view domain.VerifiedCertificate, qrPNG []byte) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate of Completion", true)
	pdf.SetAuthor(r.organization, true)
	pdf.SetMargins(20, 18, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddUTF8FontFromBytes(fontFamily, "", r.regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", r.bold)
	if err := pdf.Error(); err != nil {
		return nil, errors.Wrap(err, "load certificate font")
	}
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 40

	pdf.SetDrawColor(30, 64, 175)
	pdf.SetLineWidth(1.2)
	pdf.Rect(8, 8, pageW-16, pageH-16, "D")

	pdf.SetY(22)
	pdf.SetTextColor(30, 64, 175)
	pdf.SetFont(fontFamily, "B", 28)
	pdf.CellFormat(contentW, 12, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.SetTextColor(75, 85, 99)
	pdf.SetFont(fontFamily, "", 14)
	pdf.CellFormat(contentW, 8, "Internship Program", "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont(fontFamily, "", 13)
	pdf.CellFormat(contentW, 7, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetTextColor(17, 24, 39)
	pdf.SetFont(fontFamily, "B", 24)
	pdf.CellFormat(contentW, 12, view.Name, "", 1, "C", false, 0, "")
	pdf.SetTextColor(75, 85, 99)
	pdf.SetFont(fontFamily, "", 13)
	pdf.CellFormat(contentW, 7, "from "+view.CollegeName, "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 7, "has successfully completed the internship program in", "", 1, "C", false, 0, "")
	pdf.SetTextColor(30, 64, 175)
	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(contentW, 10, view.Field, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetTextColor(55, 65, 81)
	pdf.SetFont(fontFamily, "", 11)
	half := contentW / 2
	rows := [][2]string{
		{"Duration: " + view.Duration, "Certificate ID: " + view.CertificateID},
		{"Start Date: " + FormatDate(view.StartDate), "Project: " + view.ProjectTitle},
		{"End Date: " + FormatDate(view.EndDate), "Status: " + string(view.Status)},
	}
	for _, row := range rows {
		pdf.CellFormat(half, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(half, 6, row[1], "", 1, "L", false, 0, "")
	}
	if view.MentorFeedback != "" {
		pdf.Ln(2)
		pdf.MultiCell(contentW, 5, "Mentor Feedback: "+view.MentorFeedback, "", "L", false)
	}

	footerY := pageH - 48
	r.signature(pdf, 20, footerY, "Director")
	r.signature(pdf, pageW-20-60, footerY, "Program Coordinator")

	if len(qrPNG) > 0 {
		opt := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(qrPNG))
		qrX := pageW/2 - 15
		pdf.ImageOptions("qr", qrX, footerY-8, 30, 30, false, opt, 0, r.VerificationURL(view.CertificateID))
		pdf.SetXY(qrX-10, footerY+23)
		pdf.SetFont(fontFamily, "", 8)
		pdf.CellFormat(50, 4, "Scan to verify", "", 0, "C", false, 0, "")
	}

	pdf.SetXY(20, pageH-18)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(107, 114, 128)
	issued := r.now()
	if !view.ApprovedAt.IsZero() {
		issued = view.ApprovedAt
	}
	pdf.CellFormat(contentW, 5, "Issued on: "+issued.Format("January 2, 2006"), "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "write pdf")
	}
	return buf.Bytes(), nil
}

func (r *Renderer) signature(pdf *fpdf.Fpdf, x, y float64, role string) {
	pdf.SetDrawColor(156, 163, 175)
	pdf.SetLineWidth(0.5)
	pdf.Line(x, y, x+60, y)
	pdf.SetXY(x, y+2)
	pdf.SetTextColor(55, 65, 81)
	pdf.SetFont(fontFamily, "B", 11)
	pdf.CellFormat(60, 6, role, "", 2, "C", false, 0, "")
	pdf.SetFont(fontFamily, "", 9)
	pdf.CellFormat(60, 5, r.organization, "", 0, "C", false, 0, "")
}

// FormatDate renders an applicant-supplied yyyy-mm-dd date as
// "January 2, 2006". Anything else is returned unchanged.
func FormatDate(value string) string {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return value
	}
	return t.Format("January 2, 2006")
}
