package synth

import (
	"errors"
	"testing"
)

func TestSliceOutOfRange(t *testing.T) {
	g := newTestGenerator(t)
	cases := []struct{ index, total int }{{0, 128}, {129, 128}, {1, 0}, {-1, 10}}
	for _, tc := range cases {
		if _, err := g.Slice(tc.index, tc.total); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("Slice(%d, %d): expected ErrOutOfRange, got %v", tc.index, tc.total, err)
		}
	}
}

func TestSliceValues(t *testing.T) {
	g := newTestGenerator(t)
	cat := g.Catalogue()
	for idx := 1; idx <= 128; idx++ {
		s, err := g.Slice(idx, 128)
		if err != nil {
			t.Fatalf("Slice(%d): %v", idx, err)
		}
		if s.SliceIndex != idx || s.TotalSlices != 128 {
			t.Fatalf("unexpected index fields %d/%d", s.SliceIndex, s.TotalSlices)
		}
		if s.MeanIntensity <= 0 || s.StdIntensity <= 0 {
			t.Fatalf("slice %d: non-positive intensity stats %f/%f", idx, s.MeanIntensity, s.StdIntensity)
		}
		seg := s.Segmentation
		if seg.TumorVolumePercent < 0 || seg.NumRegions < 0 || seg.NumRegions > maxRegions {
			t.Fatalf("slice %d: invalid segmentation %+v", idx, seg)
		}
		if seg.TumorVolumePercent == 0 && seg.NumRegions != 0 {
			t.Fatalf("slice %d: regions without tumor", idx)
		}
		if seg.TumorVolumePercent > 0 && seg.NumRegions == 0 {
			t.Fatalf("slice %d: tumor without regions", idx)
		}
		if len(s.IntensityHistogram) != cat.Slice.HistogramBins {
			t.Fatalf("slice %d: expected %d bins, got %d", idx, cat.Slice.HistogramBins, len(s.IntensityHistogram))
		}
		for _, b := range s.IntensityHistogram {
			if b.Count < 0 {
				t.Fatalf("slice %d: negative histogram count", idx)
			}
		}
		if s.Dimensions.Width != cat.Slice.Width || s.Dimensions.Height != cat.Slice.Height {
			t.Fatalf("slice %d: unexpected dimensions %+v", idx, s.Dimensions)
		}
	}
}

func TestSliceProfileIsSmooth(t *testing.T) {
	g := newTestGenerator(t)
	edge, _ := g.Slice(1, 128)
	mid, _ := g.Slice(64, 128)
	if mid.MeanIntensity <= edge.MeanIntensity {
		t.Fatalf("expected brighter mid-volume slice: %f <= %f", mid.MeanIntensity, edge.MeanIntensity)
	}
	if edge.Segmentation.TumorVolumePercent != 0 {
		t.Fatalf("expected no tumor at the volume edge, got %f", edge.Segmentation.TumorVolumePercent)
	}
	peak, _ := g.Slice(70, 128)
	if peak.Segmentation.TumorVolumePercent <= 0 {
		t.Fatalf("expected tumor near the profile center")
	}
}

func TestSliceDeterministic(t *testing.T) {
	g := newTestGenerator(t)
	a, _ := g.Slice(40, 128)
	b, _ := g.Slice(40, 128)
	if a.MeanIntensity != b.MeanIntensity || a.StdIntensity != b.StdIntensity {
		t.Fatalf("repeated slice differs")
	}
	for i := range a.IntensityHistogram {
		if a.IntensityHistogram[i] != b.IntensityHistogram[i] {
			t.Fatalf("histogram bin %d differs", i)
		}
	}
}

func TestSliceFinestHistogram(t *testing.T) {
	cat := DefaultCatalogue()
	cat.Slice.HistogramBins = maxIntensity
	g := MustNew(cat)

	s, err := g.Slice(64, 128)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(s.IntensityHistogram) != maxIntensity {
		t.Fatalf("expected %d bins, got %d", maxIntensity, len(s.IntensityHistogram))
	}
	for i, b := range s.IntensityHistogram {
		if b.Bin != i {
			t.Fatalf("bin %d starts at %d", i, b.Bin)
		}
	}
}
