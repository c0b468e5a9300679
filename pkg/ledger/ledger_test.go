package ledger

import "testing"

func TestHistoryFilter_Clamp(t *testing.T) {
	cases := []struct {
		in   HistoryFilter
		want HistoryFilter
	}{
		{HistoryFilter{Limit: 0, Offset: -5}, HistoryFilter{Limit: 50, Offset: 0}},
		{HistoryFilter{Limit: 300, Offset: 10}, HistoryFilter{Limit: 250, Offset: 10}},
		{HistoryFilter{Limit: 100, Offset: 0}, HistoryFilter{Limit: 100, Offset: 0}},
	}
	for _, c := range cases {
		got := c.in.Clamp()
		if got.Limit != c.want.Limit || got.Offset != c.want.Offset {
			t.Errorf("Clamp(%+v) = %+v, want %+v", c.in, got, c.want)
		}
	}
}
