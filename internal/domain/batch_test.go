package domain

import "testing"

func TestBatch_RecordOncePerRegion(t *testing.T) {
	units := []RunUnit{
		{Region: "africa", Executable: "swatplus", StartYear: 2001, EndYear: 2001},
		{Region: "europe", Executable: "swatplus", StartYear: 2001, EndYear: 2001},
	}
	b := NewBatch("id", "test", 2, units)

	if !b.Record(Completed(units[1], 365)) {
		t.Error("first record should be stored")
	}
	if b.Record(Failed(units[1], FailureRuntime, "late duplicate")) {
		t.Error("duplicate record should be ignored")
	}
	b.Record(Failed(units[0], FailureSilent, "no progress observed"))

	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	r, ok := b.Result("europe")
	if !ok || r.Status != RunCompleted {
		t.Errorf("europe result = %+v, want completed", r)
	}

	order := b.Order()
	if len(order) != 2 || order[0] != "europe" || order[1] != "africa" {
		t.Errorf("Order() = %v, want completion order [europe africa]", order)
	}

	byRegion := b.ResultsByRegion()
	if byRegion[0].Unit.Region != "africa" {
		t.Errorf("ResultsByRegion()[0] = %s, want africa", byRegion[0].Unit.Region)
	}
}

func TestBatch_Summary(t *testing.T) {
	units := []RunUnit{
		{Region: "a", Executable: "x", StartYear: 2001, EndYear: 2001},
		{Region: "b", Executable: "x", StartYear: 2001, EndYear: 2001},
		{Region: "c", Executable: "x", StartYear: 2001, EndYear: 2001},
		{Region: "d", Executable: "x", StartYear: 2001, EndYear: 2001},
	}
	b := NewBatch("id", "test", 2, units)
	b.Record(Completed(units[0], 365))
	b.Record(Failed(units[1], FailureLaunch, "missing"))
	b.Record(TimedOut(units[2], 10))

	s := b.Summary()
	if s.Total != 4 || s.Completed != 1 || s.Failed != 1 || s.TimedOut != 1 || s.Pending != 1 {
		t.Errorf("Summary() = %+v", s)
	}
}
