package services

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"app-boekhouding/models"
)

// Submission root elements.
const (
	SubmissionRootBTW = "btw-aangifte"
	SubmissionRootICP = "icp-aangifte"
)

// CertificateStore provides the signing certificate for tax submissions. The
// engine only checks validity; transport to the tax authority happens elsewhere.
type CertificateStore interface {
	Certificate(tenantID uint) (*SigningCertificate, error)
}

// SigningCertificate is the tenant's submission certificate.
type SigningCertificate struct {
	SerialNumber string
	Subject      string
	NotBefore    time.Time
	NotAfter     time.Time
}

// Administration identifies the filing entity in a submission package.
type Administration struct {
	ID        uint   `xml:"id"`
	Name      string `xml:"name"`
	VatNumber string `xml:"vat-number,omitempty"`
}

// SubmissionService renders the BTW and ICP declaration packages as XML and
// validates packages before hand-off. Figures come from the VAT engine so a
// package always matches the ledger it was generated from.
type SubmissionService struct {
	db           *gorm.DB
	vat          *VatService
	certificates CertificateStore
}

// NewSubmissionService creates a submission service. The certificate store may be
// nil when signing is not configured.
func NewSubmissionService(db *gorm.DB, certificates CertificateStore) *SubmissionService {
	return &SubmissionService{
		db:           db,
		vat:          NewVatService(db),
		certificates: certificates,
	}
}

type submissionMetadata struct {
	PeriodID    uint   `xml:"period-id"`
	PeriodName  string `xml:"period-name"`
	StartDate   string `xml:"start-date"`
	EndDate     string `xml:"end-date"`
	GeneratedAt string `xml:"generated-at"`
}

type btwBox struct {
	Code   string `xml:"code,attr"`
	Base   string `xml:"base,omitempty"`
	Amount string `xml:"amount"`
}

type btwTotals struct {
	VatPayable    string `xml:"vat-payable"`
	VatReceivable string `xml:"vat-receivable"`
	NetVat        string `xml:"net-vat"`
}

type btwDeclaration struct {
	XMLName        xml.Name           `xml:"btw-aangifte"`
	Metadata       submissionMetadata `xml:"metadata"`
	Administration Administration     `xml:"administration"`
	Boxes          []btwBox           `xml:"vat-boxes>box"`
	Totals         btwTotals          `xml:"totals"`
}

type icpLine struct {
	CustomerVatNumber string `xml:"customer-vat-number"`
	CountryCode       string `xml:"country-code"`
	TaxableBase       string `xml:"taxable-base"`
}

type icpDeclaration struct {
	XMLName        xml.Name           `xml:"icp-aangifte"`
	Metadata       submissionMetadata `xml:"metadata"`
	Administration Administration     `xml:"administration"`
	Entries        []icpLine          `xml:"icp-entries>entry"`
	TotalBase      string             `xml:"total-taxable-base"`
}

// BuildBTW renders the VAT declaration for a period.
func (s *SubmissionService) BuildBTW(cc CoreContext, periodID uint, admin Administration) ([]byte, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	period, err := s.loadPeriod(cc, periodID)
	if err != nil {
		return nil, err
	}

	summary, err := s.vat.SummaryForRangeTx(s.db, cc.TenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}

	boxes := make([]btwBox, 0, len(summary.ByCode))
	for _, activity := range summary.ByCode {
		boxes = append(boxes, btwBox{
			Code:   activity.Code,
			Base:   activity.BaseTotal.StringFixed(2),
			Amount: activity.VatTotal.StringFixed(2),
		})
	}

	declaration := btwDeclaration{
		Metadata:       s.metadata(cc, period),
		Administration: admin,
		Boxes:          boxes,
		Totals: btwTotals{
			VatPayable:    summary.VatPayable.StringFixed(2),
			VatReceivable: summary.VatReceivable.StringFixed(2),
			NetVat:        summary.NetVat.StringFixed(2),
		},
	}
	return marshalSubmission(declaration)
}

// BuildICP renders the intra-community supplies declaration for a period.
func (s *SubmissionService) BuildICP(cc CoreContext, periodID uint, admin Administration) ([]byte, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	period, err := s.loadPeriod(cc, periodID)
	if err != nil {
		return nil, err
	}

	entries, err := s.vat.ICPEntriesForRangeTx(s.db, cc.TenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}

	lines := make([]icpLine, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, icpLine{
			CustomerVatNumber: entry.PartyVatNumber,
			CountryCode:       entry.CountryCode,
			TaxableBase:       entry.TaxableBase.StringFixed(2),
		})
	}

	declaration := icpDeclaration{
		Metadata:       s.metadata(cc, period),
		Administration: admin,
		Entries:        lines,
		TotalBase:      icpTotal(entries),
	}
	return marshalSubmission(declaration)
}

func icpTotal(entries []ICPEntry) string {
	if len(entries) == 0 {
		return "0.00"
	}
	total := entries[0].TaxableBase
	for _, entry := range entries[1:] {
		total = total.Add(entry.TaxableBase)
	}
	return total.StringFixed(2)
}

func (s *SubmissionService) metadata(cc CoreContext, period *models.Period) submissionMetadata {
	return submissionMetadata{
		PeriodID:    period.ID,
		PeriodName:  period.Name,
		StartDate:   period.StartDate.Format("2006-01-02"),
		EndDate:     period.EndDate.Format("2006-01-02"),
		GeneratedAt: cc.Now().UTC().Format(time.RFC3339),
	}
}

func (s *SubmissionService) loadPeriod(cc CoreContext, periodID uint) (*models.Period, error) {
	var period models.Period
	if err := s.db.Where("tenant_id = ?", cc.TenantID).First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "period %d not found", periodID)
		}
		return nil, err
	}
	return &period, nil
}

func marshalSubmission(v interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render submission: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Validate checks a submission package before hand-off: well-formed XML, a known
// root element, metadata and administration sections, and the body section the
// root requires.
func (s *SubmissionService) Validate(pkg []byte) error {
	root, sections, err := inspectXML(pkg)
	if err != nil {
		return NewError(ErrValidationFailed, "submission is not well-formed XML: %v", err)
	}

	var required string
	switch root {
	case SubmissionRootBTW:
		required = "vat-boxes"
	case SubmissionRootICP:
		required = "icp-entries"
	default:
		return NewError(ErrValidationFailed, "unknown submission root element %q", root)
	}

	for _, section := range []string{"metadata", "administration", required} {
		if !sections[section] {
			return NewError(ErrValidationFailed, "submission is missing the %s section", section)
		}
	}
	return nil
}

// inspectXML walks the document and collects the root element name and the names
// of its direct children.
func inspectXML(pkg []byte) (string, map[string]bool, error) {
	decoder := xml.NewDecoder(bytes.NewReader(pkg))
	sections := make(map[string]bool)
	root := ""
	depth := 0

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			if root == "" {
				return "", nil, fmt.Errorf("no root element")
			}
			return root, sections, nil
		}
		if err != nil {
			return "", nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if depth == 0 {
				root = t.Name.Local
			} else if depth == 1 {
				sections[t.Name.Local] = true
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
}

// Sign validates the package and the tenant's certificate and returns the package
// annotated with the certificate serial. An expired or not yet valid certificate
// refuses the submission.
func (s *SubmissionService) Sign(cc CoreContext, pkg []byte) ([]byte, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	if err := s.Validate(pkg); err != nil {
		return nil, err
	}
	if s.certificates == nil {
		return nil, NewError(ErrCertificateInvalid, "no certificate store configured")
	}

	cert, err := s.certificates.Certificate(cc.TenantID)
	if err != nil {
		return nil, NewError(ErrCertificateInvalid, "failed to load certificate: %v", err)
	}
	now := cc.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, NewError(ErrCertificateInvalid, "certificate %s is not valid at %s",
			cert.SerialNumber, now.Format("2006-01-02"))
	}

	signature := fmt.Sprintf("\n<!-- signed: serial=%s subject=%s at=%s -->\n",
		cert.SerialNumber, cert.Subject, now.UTC().Format(time.RFC3339))
	return append(pkg, []byte(signature)...), nil
}
