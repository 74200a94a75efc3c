package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lexhub.org/internal/directory"
	"lexhub.org/internal/mail"
	"lexhub.org/internal/workflow"
)

type fixture struct {
	dir    *directory.InMemory
	svc    *InMemory
	mailer *mail.Recorder
	owner  directory.User
	lawyer directory.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := directory.NewInMemory()
	owner, err := dir.Register(ctx, "owner@example.com", "secret-pass", "client", "Owner")
	if err != nil {
		t.Fatal(err)
	}
	lawyer, err := dir.Register(ctx, "lawyer@example.com", "secret-pass", "lawyer", "L")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dir.SubmitKYCDocument(ctx, lawyer.ID, "bar_certificate", "s3://kyc/x"); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.ReviewKYC(ctx, lawyer.ID, directory.KYCVerified, ""); err != nil {
		t.Fatal(err)
	}
	mailer := &mail.Recorder{}
	return &fixture{dir: dir, svc: NewInMemory(dir, mailer), mailer: mailer, owner: owner, lawyer: lawyer}
}

func (f *fixture) draft(t *testing.T) Document {
	t.Helper()
	d, err := f.svc.Create(context.Background(), f.owner.ID, "Rent Agreement", "agreement", "s3://docs/1", 100000, 50000)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func (f *fixture) approved(t *testing.T) Document {
	t.Helper()
	ctx := context.Background()
	d := f.draft(t)
	if _, err := f.svc.SubmitForReview(ctx, f.owner.ID, d.ID, f.lawyer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.StartReview(ctx, f.lawyer.ID, d.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Review(ctx, f.lawyer.ID, d.ID, "approved", "looks fine")
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCreateComputesPricing(t *testing.T) {
	f := newFixture(t)
	d := f.draft(t)
	if d.Pricing.Tax != 27000 {
		t.Fatalf("tax=%d, want 27000", d.Pricing.Tax)
	}
	if d.Pricing.Total != d.Pricing.Base+d.Pricing.Additional+d.Pricing.Tax {
		t.Fatalf("total invariant violated: %+v", d.Pricing)
	}
	if len(d.Audit) != 1 || d.Audit[0].Action != "create" {
		t.Fatalf("missing create audit entry: %v", d.Audit)
	}
}

func TestUpdateRecomputesPricing(t *testing.T) {
	f := newFixture(t)
	d := f.draft(t)
	base := int64(200000)
	got, err := f.svc.Update(context.Background(), f.owner.ID, d.ID, "", "", &base, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := ComputePricing(200000, 50000)
	if got.Pricing != want {
		t.Fatalf("pricing=%+v, want %+v", got.Pricing, want)
	}
}

func TestUpdateBlockedOutsideDraft(t *testing.T) {
	f := newFixture(t)
	d := f.approved(t)
	if _, err := f.svc.Update(context.Background(), f.owner.ID, d.ID, "New title", "", nil, nil); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestReviewRequiresAssignedLawyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.draft(t)
	if _, err := f.svc.SubmitForReview(ctx, f.owner.ID, d.ID, f.lawyer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.StartReview(ctx, f.owner.ID, d.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Review before start_review hits the transition table.
	if _, err := f.svc.Review(ctx, f.lawyer.ID, d.ID, "approved", ""); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRevisionLoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.draft(t)
	if _, err := f.svc.SubmitForReview(ctx, f.owner.ID, d.ID, f.lawyer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.StartReview(ctx, f.lawyer.ID, d.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Review(ctx, f.lawyer.ID, d.ID, "needs_revision", "clause 4 is unclear")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusNeedsRevision {
		t.Fatalf("status=%s, want needs_revision", got.Status)
	}
	// Owner may edit again and resubmit.
	if _, err := f.svc.Update(ctx, f.owner.ID, d.ID, "Rent Agreement v2", "", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitForReview(ctx, f.owner.ID, d.ID, f.lawyer.ID); err != nil {
		t.Fatal(err)
	}
}

func TestSignVerifiesIssuedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.approved(t)

	if _, err := f.svc.RequestSignatures(ctx, f.owner.ID, d.ID, []string{f.owner.ID}); err != nil {
		t.Fatal(err)
	}
	sent := f.mailer.Sent()
	if len(sent) != 1 || sent[0].To != "owner@example.com" {
		t.Fatalf("otp mail not sent: %v", sent)
	}
	otp := extractOTP(t, sent[0].Body)

	if _, err := f.svc.Sign(ctx, f.owner.ID, d.ID, "000000"); !errors.Is(err, ErrBadOTP) {
		t.Fatalf("expected ErrBadOTP for wrong code, got %v", err)
	}
	got, err := f.svc.Sign(ctx, f.owner.ID, d.ID, otp)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status=%s, want completed after last signature", got.Status)
	}
	if len(got.Signatures) != 1 || got.Signatures[0].SignerID != f.owner.ID {
		t.Fatalf("signature record missing: %v", got.Signatures)
	}
}

func TestSignByNonSignerForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.approved(t)
	if _, err := f.svc.RequestSignatures(ctx, f.owner.ID, d.ID, []string{f.owner.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Sign(ctx, f.lawyer.ID, d.ID, "123456"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAuditTrailGrowsWithEveryMutation(t *testing.T) {
	f := newFixture(t)
	d := f.approved(t)
	// create + submit + start_review + review = 4 entries.
	if len(d.Audit) != 4 {
		t.Fatalf("audit entries=%d, want 4: %v", len(d.Audit), d.Audit)
	}
	for _, e := range d.Audit {
		if e.ActorID == "" || e.At.IsZero() {
			t.Fatalf("incomplete audit entry: %+v", e)
		}
	}
}

func TestRequestSignaturesUnknownSignerLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.approved(t)

	_, err := f.svc.RequestSignatures(ctx, f.owner.ID, d.ID, []string{f.owner.ID, "no-such-user"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.mailer.Sent()) != 0 {
		t.Fatalf("no codes may go out for a rejected request: %d sent", len(f.mailer.Sent()))
	}
	got, err := f.svc.Get(ctx, f.owner.ID, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved || len(got.Signers) != 0 {
		t.Fatalf("document must be unchanged: %+v", got)
	}
	for _, e := range got.Audit {
		if e.Action == "request_signatures" {
			t.Fatalf("audit must not record the refused request: %+v", got.Audit)
		}
	}

	// The same document still accepts a valid signer set.
	if _, err := f.svc.RequestSignatures(ctx, f.owner.ID, d.ID, []string{f.owner.ID}); err != nil {
		t.Fatal(err)
	}
}

// failingMailer delivers the first ok messages and then refuses.
type failingMailer struct {
	ok   int
	sent int
}

func (m *failingMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.sent >= m.ok {
		return errors.New("smtp unavailable")
	}
	m.sent++
	return nil
}

func TestRequestSignaturesMailFailureLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.approved(t)
	f.svc.mailer = &failingMailer{}

	_, err := f.svc.RequestSignatures(ctx, f.owner.ID, d.ID, []string{f.owner.ID})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	got, err := f.svc.Get(ctx, f.owner.ID, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved || len(got.Signers) != 0 {
		t.Fatalf("document must be unchanged after failed delivery: %+v", got)
	}
}

func extractOTP(t *testing.T, body string) string {
	t.Helper()
	for _, w := range strings.Fields(strings.ReplaceAll(body, ".", " ")) {
		if len(w) == 6 && strings.Trim(w, "0123456789") == "" {
			return w
		}
	}
	t.Fatalf("no otp in mail body: %q", body)
	return ""
}
