package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateResolver returns the rate set configured for a tenant and period.
type RateResolver interface {
	Resolve(ctx context.Context, tenantID string, period Period) (RateSet, error)
}

// ResolvedRates is a RateSet ready for calculation: caps are already
// converted to pesos.
type ResolvedRates struct {
	GratificationRate decimal.Decimal
	GratificationCap  decimal.Decimal
	FamilyAllowance   decimal.Decimal
	AFPWorkerRate     decimal.Decimal
	AFPCap            decimal.Decimal
	FonasaRate        decimal.Decimal
	HealthCap         decimal.Decimal
	AFCIndefinite     decimal.Decimal
	AFCFixedTerm      decimal.Decimal
	TaxThreshold      decimal.Decimal
}

func (r RateSet) Validate() error {
	fractions := map[string]float64{
		"afpWorkerRate":         r.AFPWorkerRate,
		"fonasaRate":            r.FonasaRate,
		"afcWorkerIndefinite":   r.AFCWorkerIndefinite,
		"afcWorkerFixedTerm":    r.AFCWorkerFixedTerm,
		"afcEmployerIndefinite": r.AFCEmployerIndefinite,
		"afcEmployerFixedTerm":  r.AFCEmployerFixedTerm,
		"accidentInsuranceRate": r.AccidentInsuranceRate,
		"gratificationRate":     r.GratificationRate,
	}
	for name, value := range fractions {
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidRateSet, name, value)
		}
	}
	amounts := map[string]float64{
		"minimumWage":           float64(r.MinimumWage),
		"ufValue":               r.UFValue,
		"utmValue":              r.UTMValue,
		"gratificationCapUf":    r.GratificationCapUF,
		"familyAllowanceAmount": float64(r.FamilyAllowanceAmount),
		"afpCapUf":              r.AFPCapUF,
		"healthCapUf":           r.HealthCapUF,
	}
	for name, value := range amounts {
		if value < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidRateSet, name, value)
		}
	}
	if _, err := ParsePeriod(string(r.Period)); err != nil {
		return err
	}
	return nil
}

func (r RateSet) Resolve() ResolvedRates {
	uf := decimal.NewFromFloat(r.UFValue)
	return ResolvedRates{
		GratificationRate: decimal.NewFromFloat(r.GratificationRate),
		GratificationCap:  decimal.NewFromFloat(r.GratificationCapUF).Mul(uf),
		FamilyAllowance:   decimal.NewFromInt(r.FamilyAllowanceAmount),
		AFPWorkerRate:     decimal.NewFromFloat(r.AFPWorkerRate),
		AFPCap:            decimal.NewFromFloat(r.AFPCapUF).Mul(uf),
		FonasaRate:        decimal.NewFromFloat(r.FonasaRate),
		HealthCap:         decimal.NewFromFloat(r.HealthCapUF).Mul(uf),
		AFCIndefinite:     decimal.NewFromFloat(r.AFCWorkerIndefinite),
		AFCFixedTerm:      decimal.NewFromFloat(r.AFCWorkerFixedTerm),
		TaxThreshold:      decimal.NewFromFloat(r.UTMValue).Mul(decimal.RequireFromString(taxThresholdUTM)),
	}
}

type RateReader interface {
	GetRateSet(ctx context.Context, tenantID string, period Period) (RateSet, error)
}

// StoreResolver resolves rate sets straight from storage.
type StoreResolver struct {
	store RateReader
}

func NewStoreResolver(store RateReader) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(ctx context.Context, tenantID string, period Period) (RateSet, error) {
	rates, err := r.store.GetRateSet(ctx, tenantID, period)
	if err != nil {
		return RateSet{}, err
	}
	return rates, nil
}
