package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebtran/momentdeals/internal/domain"
)

type stubResources struct {
	present map[string]bool
	err     error
}

func (s *stubResources) ResourceExists(_ context.Context, _, resourceID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.present[resourceID], nil
}

type stubHoldings struct {
	held map[string]bool
	err  error
}

func (s *stubHoldings) HoldsItem(_ context.Context, _, itemID, _ string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.held[itemID], nil
}

func newTestVerifier(t *testing.T, resources *stubResources, holdings *stubHoldings) (*Verifier, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t, ServiceOptions{})

	l := activeListing("m-1", "ref-1", time.Now())
	l.SellerAddress = "0xseller"
	svc.Upsert(context.Background(), l)

	v := NewVerifier(resources, holdings, svc, "A.topshot.Moment.NFT", testLogger())
	return v, svc
}

func TestVerifier_ResourcePresentConfirmsActive(t *testing.T) {
	v, svc := newTestVerifier(t,
		&stubResources{present: map[string]bool{"ref-1": true}},
		&stubHoldings{})

	res, err := v.Verify(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyActive, res.Outcome)

	got, _ := svc.Get(context.Background(), "m-1")
	assert.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestVerifier_ResourceGoneAndNotHeldMeansSold(t *testing.T) {
	v, svc := newTestVerifier(t,
		&stubResources{present: map[string]bool{}},
		&stubHoldings{held: map[string]bool{}})

	res, err := v.Verify(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerifySold, res.Outcome)

	got, _ := svc.Get(context.Background(), "m-1")
	assert.Equal(t, domain.ListingStatusSold, got.Status)
}

func TestVerifier_ResourceGoneButStillHeldMeansUnlisted(t *testing.T) {
	v, svc := newTestVerifier(t,
		&stubResources{present: map[string]bool{}},
		&stubHoldings{held: map[string]bool{"m-1": true}})

	res, err := v.Verify(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyUnlisted, res.Outcome)

	got, _ := svc.Get(context.Background(), "m-1")
	assert.Equal(t, domain.ListingStatusUnlisted, got.Status)
}

func TestVerifier_HoldingsFailureChangesNothing(t *testing.T) {
	v, svc := newTestVerifier(t,
		&stubResources{present: map[string]bool{}},
		&stubHoldings{err: assert.AnError})

	res, err := v.Verify(context.Background(), "m-1")
	require.ErrorIs(t, err, domain.ErrUnverifiable)
	assert.Equal(t, domain.VerifyUnknown, res.Outcome)

	got, _ := svc.Get(context.Background(), "m-1")
	assert.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestVerifier_LedgerFailureChangesNothing(t *testing.T) {
	v, svc := newTestVerifier(t,
		&stubResources{err: assert.AnError},
		&stubHoldings{})

	res, err := v.Verify(context.Background(), "m-1")
	require.ErrorIs(t, err, domain.ErrUnverifiable)
	assert.Equal(t, domain.VerifyUnknown, res.Outcome)

	got, _ := svc.Get(context.Background(), "m-1")
	assert.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestVerifier_UnknownItem(t *testing.T) {
	v, _ := newTestVerifier(t, &stubResources{}, &stubHoldings{})

	res, err := v.Verify(context.Background(), "m-missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.VerifyUnknown, res.Outcome)
}
