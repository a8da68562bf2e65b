package snapshot

import (
	"fmt"
	"math/rand/v2"
)

var (
	charges = []string{
		"Aggravated Assault",
		"Burglary",
		"Criminal Trespass",
		"Driving While Intoxicated",
		"Failure to Appear",
		"Possession of Controlled Substance",
		"Probation Violation",
		"Theft",
	}
	facilities = []string{
		"Central Detention Center",
		"North Annex",
		"Intake and Processing Center",
		"State Transfer Facility",
		"Medical Holding Unit",
	}
	bonds = []string{
		"500",
		"1500",
		"5000",
		"10000",
		"25000",
		"no-bond",
	}
	streets = []string{
		"Oak St",
		"Main St",
		"Elm Ave",
		"Lakeview Dr",
		"Ridge Rd",
		"Cedar Ln",
	}
)

type transition func(f Fields, rng *rand.Rand)

// mutate applies one plausible real-world transition for the record's current
// custody status. Every transition changes at least one field.
func mutate(f Fields, rng *rand.Rand) {
	var options []transition
	switch f[FieldStatus] {
	case StatusActiveCustody:
		options = []transition{release, transfer, changeBond, amendCharge}
	case StatusTransferred:
		options = []transition{release, transfer, changeBond}
	case StatusReleased:
		options = []transition{clearRecord, book}
	case StatusWarrantIssued:
		options = []transition{book, clearRecord}
	default:
		options = []transition{book, book, issueWarrant}
	}
	// Metadata-only churn is possible from any state.
	options = append(options, moveAddress)

	options[rng.IntN(len(options))](f, rng)
}

func book(f Fields, rng *rand.Rand) {
	f[FieldStatus] = StatusActiveCustody
	f[FieldBookingNumber] = fmt.Sprintf("B%07d", rng.IntN(10_000_000))
	if f[FieldCharge] == "" {
		f[FieldCharge] = pick(charges, rng)
	}
	f[FieldFacility] = pick(facilities, rng)
	f[FieldBondAmount] = pick(bonds, rng)
}

func issueWarrant(f Fields, rng *rand.Rand) {
	f[FieldStatus] = StatusWarrantIssued
	f[FieldCharge] = pick(charges, rng)
}

func release(f Fields, _ *rand.Rand) {
	f[FieldStatus] = StatusReleased
	delete(f, FieldFacility)
}

func transfer(f Fields, rng *rand.Rand) {
	f[FieldStatus] = StatusTransferred
	f[FieldFacility] = pickOther(facilities, f[FieldFacility], rng)
}

func changeBond(f Fields, rng *rand.Rand) {
	f[FieldBondAmount] = pickOther(bonds, f[FieldBondAmount], rng)
}

func amendCharge(f Fields, rng *rand.Rand) {
	f[FieldCharge] = pickOther(charges, f[FieldCharge], rng)
}

func clearRecord(f Fields, _ *rand.Rand) {
	f[FieldStatus] = StatusNone
	delete(f, FieldCharge)
	delete(f, FieldFacility)
	delete(f, FieldBondAmount)
	delete(f, FieldBookingNumber)
}

func moveAddress(f Fields, rng *rand.Rand) {
	f[FieldAddress] = pickOther(addresses(), f[FieldAddress], rng)
}

func addresses() []string {
	out := make([]string, 0, len(streets)*3)
	for _, n := range []int{118, 2204, 57} {
		for _, s := range streets {
			out = append(out, fmt.Sprintf("%d %s", n, s))
		}
	}
	return out
}

func pick(pool []string, rng *rand.Rand) string {
	return pool[rng.IntN(len(pool))]
}

// pickOther returns a pool value different from current.
func pickOther(pool []string, current string, rng *rand.Rand) string {
	v := pool[rng.IntN(len(pool))]
	if v != current {
		return v
	}
	for _, alt := range pool {
		if alt != current {
			return alt
		}
	}
	return v
}
