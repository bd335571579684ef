package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	require.Equal(t, "Audi A6 2019", CleanText("  Audi\n\tA6   2019 "))
	require.Equal(t, "", CleanText(" \n\t "))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *float64
	}{
		{name: "space separated", in: "25 500 $", want: floatPtr(25500)},
		{name: "comma thousands", in: "7,500", want: floatPtr(7500)},
		{name: "plain", in: "25500", want: floatPtr(25500)},
		{name: "nbsp separated", in: "18\u00a0900 $", want: floatPtr(18900)},
		{name: "decimal comma", in: "12,5", want: floatPtr(12.5)},
		{name: "no digits", in: "договірна", want: nil},
		{name: "empty", in: "", want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePrice(tc.in)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.InDelta(t, *tc.want, *got, 1e-9)
		})
	}
}

func TestParseOdometer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *int64
	}{
		{name: "thousands abbreviation", in: "95 тис. км", want: int64Ptr(95000)},
		{name: "thousands no dot", in: "120 тис км", want: int64Ptr(120000)},
		{name: "plain km", in: "142 000 км", want: int64Ptr(142000)},
		{name: "embedded in block", in: "Пробіг 83 тис. км • Бензин", want: int64Ptr(83000)},
		{name: "no mileage", in: "Бензин, 2.0 л", want: nil},
		{name: "empty", in: "", want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseOdometer(tc.in)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tc.want, *got)
		})
	}
}

func TestFindPhone(t *testing.T) {
	html := `<div><span class="phone bold">(067) 123 45 67</span></div>`
	phone := FindPhone(html)
	require.NotNil(t, phone)
	require.Equal(t, "+380671234567", *phone)

	require.Nil(t, FindPhone("<div>показати телефон</div>"))
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "+380671234567", NormalizePhone("(067) 123 45 67"))
	require.Equal(t, "+380671234567", NormalizePhone("+38 (067) 123-45-67"))
	require.Equal(t, "+380501112233", NormalizePhone("050 111 22 33"))
}

func floatPtr(f float64) *float64 { return &f }

func int64Ptr(i int64) *int64 { return &i }

func stringPtr(s string) *string { return &s }
