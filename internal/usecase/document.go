package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/tadcs/certportal/internal/domain"
)

// Document is a rendered artifact ready to be sent to the client.
type Document struct {
	FileName    string
	ContentType string
	Body        []byte
}

// DocumentUsecase renders QR codes and certificate PDFs for approved
// applications only.
type DocumentUsecase struct {
	verification *VerificationUsecase
	repo         ApplicationRepository
	auth         Authorizer
	renderer     DocumentRenderer
}

func NewDocumentUsecase(verification *VerificationUsecase, repo ApplicationRepository, auth Authorizer, renderer DocumentRenderer) *DocumentUsecase {
	return &DocumentUsecase{
		verification: verification,
		repo:         repo,
		auth:         auth,
		renderer:     renderer,
	}
}

func (uc *DocumentUsecase) QRCode(ctx context.Context, certificateID string) (Document, error) {
	ctx, span := tracer.Start(ctx, "Document.QRCode")
	defer span.End()

	view, err := uc.verification.Resolve(ctx, certificateID)
	if err != nil {
		return Document{}, err
	}
	png, err := uc.renderer.QRCode(view.CertificateID)
	if err != nil {
		span.RecordError(err)
		return Document{}, errors.Wrap(err, "render qr code")
	}
	return Document{
		FileName:    view.CertificateID + ".png",
		ContentType: "image/png",
		Body:        png,
	}, nil
}

// CertificatePDF renders the public certificate document.
func (uc *DocumentUsecase) CertificatePDF(ctx context.Context, certificateID string) (Document, error) {
	ctx, span := tracer.Start(ctx, "Document.CertificatePDF")
	defer span.End()

	view, err := uc.verification.Resolve(ctx, certificateID)
	if err != nil {
		return Document{}, err
	}
	return uc.render(view)
}

// AdminCertificatePDF renders the certificate of an application by its id.
func (uc *DocumentUsecase) AdminCertificatePDF(ctx context.Context, token, applicationID string) (Document, error) {
	ctx, span := tracer.Start(ctx, "Document.AdminCertificatePDF")
	defer span.End()

	if _, err := uc.auth.Authorize(ctx, token); err != nil {
		span.RecordError(err)
		return Document{}, err
	}
	app, err := uc.repo.Get(ctx, applicationID)
	if err != nil {
		return Document{}, err
	}
	if app.Status != domain.StatusApproved || !app.HasCertificate() {
		return Document{}, domain.ErrCertificateNotApproved
	}
	return uc.render(domain.NewVerifiedCertificate(app))
}

func (uc *DocumentUsecase) render(view domain.VerifiedCertificate) (Document, error) {
	png, err := uc.renderer.QRCode(view.CertificateID)
	if err != nil {
		return Document{}, errors.Wrap(err, "render qr code")
	}
	pdf, err := uc.renderer.CertificatePDF(view, png)
	if err != nil {
		return Document{}, errors.Wrap(err, "render certificate pdf")
	}
	return Document{
		FileName:    CertificateFileName(view.Name),
		ContentType: "application/pdf",
		Body:        pdf,
	}, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// CertificateFileName builds "<Name_With_Underscores>_Certificate.pdf".
func CertificateFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Certificate.pdf"
	}
	return whitespace.ReplaceAllString(name, "_") + "_Certificate.pdf"
}
