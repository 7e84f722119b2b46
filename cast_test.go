package dynadoc_test

import (
	"testing"
	"time"

	dd "github.com/dynadoc/dynadoc"
)

func TestCast_Nil(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeInteger, nil)
	assertNoErr(t, err)
	if v != nil {
		t.Errorf("nil in, %v out", v)
	}
}

func TestCast_Integer(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{42, 42},
		{int64(42), 42},
		{42.9, 42},
		{"42", 42},
		{"42.9", 42},
	}
	for _, c := range cases {
		v, err := dd.Cast(dd.FieldTypeInteger, c.in)
		assertNoErr(t, err)
		assertEqual(t, v, c.want)
	}
}

func TestCast_IntegerFailureKeepsRaw(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeInteger, "forty-two")
	if err == nil {
		t.Fatal("expected cast error")
	}
	assertEqual(t, v, "forty-two")
}

func TestCast_Number(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeNumber, "3.25")
	assertNoErr(t, err)
	assertEqual(t, v, 3.25)

	v, err = dd.Cast(dd.FieldTypeNumber, 3)
	assertNoErr(t, err)
	assertEqual(t, v, float64(3))
}

func TestCast_Boolean(t *testing.T) {
	for _, in := range []any{true, "true", "1"} {
		v, err := dd.Cast(dd.FieldTypeBoolean, in)
		assertNoErr(t, err)
		assertEqual(t, v, true)
	}
	if _, err := dd.Cast(dd.FieldTypeBoolean, "yes"); err == nil {
		t.Error("expected cast error for \"yes\"")
	}
}

func TestCast_StringStringifies(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeString, 42)
	assertNoErr(t, err)
	assertEqual(t, v, "42")
}

func TestCast_DateTruncates(t *testing.T) {
	in := time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)
	v, err := dd.Cast(dd.FieldTypeDate, in)
	assertNoErr(t, err)
	got := v.(time.Time)
	assertEqual(t, got, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	v, err = dd.Cast(dd.FieldTypeDate, "2024-03-15")
	assertNoErr(t, err)
	assertEqual(t, v, got)
}

func TestCast_DateTime(t *testing.T) {
	at := time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)

	v, err := dd.Cast(dd.FieldTypeDateTime, at.Format(time.RFC3339Nano))
	assertNoErr(t, err)
	assertEqual(t, v, at)

	v, err = dd.Cast(dd.FieldTypeDateTime, at.UnixMilli())
	assertNoErr(t, err)
	assertEqual(t, v, at)
}

func TestCast_Idempotent(t *testing.T) {
	cases := []struct {
		tag dd.FieldType
		in  any
	}{
		{dd.FieldTypeInteger, "42"},
		{dd.FieldTypeNumber, "3.25"},
		{dd.FieldTypeBoolean, "true"},
		{dd.FieldTypeDate, "2024-03-15"},
		{dd.FieldTypeDateTime, "2024-03-15T13:45:30Z"},
		{dd.FieldTypeString, 42},
	}
	for _, c := range cases {
		once, err := dd.Cast(c.tag, c.in)
		assertNoErr(t, err)
		twice, err := dd.Cast(c.tag, once)
		assertNoErr(t, err)
		assertEqual(t, twice, once)
	}
}

func TestCast_SetDeduplicates(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeSet, []any{"a", "b", "a"})
	assertNoErr(t, err)
	assertEqual(t, v, []any{"a", "b"})
}

func TestCast_ArrayKeepsDuplicates(t *testing.T) {
	v, err := dd.Cast(dd.FieldTypeArray, []string{"a", "a"})
	assertNoErr(t, err)
	assertEqual(t, v, []any{"a", "a"})
}

func TestDump_Date(t *testing.T) {
	v, err := dd.Dump(dd.FieldTypeDate, time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC))
	assertNoErr(t, err)
	assertEqual(t, v, "2024-03-15")
}

func TestDump_DateTime(t *testing.T) {
	at := time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)
	v, err := dd.Dump(dd.FieldTypeDateTime, at)
	assertNoErr(t, err)
	assertEqual(t, v, at.UnixMilli())
}

func TestDump_AgreesWithCast(t *testing.T) {
	raw, err := dd.Dump(dd.FieldTypeInteger, "42")
	assertNoErr(t, err)
	canonical, err := dd.Dump(dd.FieldTypeInteger, int64(42))
	assertNoErr(t, err)
	assertEqual(t, raw, canonical)
}
