// Package domain models satellite rainfall extraction for the administrative
// sub-regions (talukas) of a river basin.
//
// # Data Source
//
// Rainfall comes from a gridded multi-sensor precipitation product in the
// style of GPM IMERG: 0.1° × 0.1° cells, half-hourly native samples. Sources
// are reached through [PrecipitationSource]; each returned [Sample] is already
// an accumulation in millimeters over its own native interval. Adapters that
// receive rates (mm/hr) convert them exactly once before handing samples to
// this package.
//
// # Periods
//
// Aggregation periods are half-open UTC intervals [start, end):
//
//	day:   [2020-01-01T00:00Z, 2020-01-02T00:00Z)
//	month: [2020-01-01T00:00Z, 2020-02-01T00:00Z)
//
// Monthly periods are always full calendar months, even when the study
// interval starts or ends mid-month. With the default coverage every month of
// every year touched by the interval is emitted, so a monthly dataset has
// 12 × years rows per region.
//
// # Aggregation
//
// Point regions take the samples of the grid cell enclosing the point and sum
// them. Polygon regions are area weighted:
//
//	value = Σ(cell_total × area(cell ∩ polygon)) / Σ(area(cell ∩ polygon))
//
// over all cells with data that intersect the polygon. Cell areas are geodesic
// (m²), computed with paulmach/orb.
//
// # Missing Values
//
// A missing value is a nil *float64 and is never conflated with 0. It is
// produced when the source has no data for the window (outage, coverage gap)
// or when retries against a failing source are exhausted. Datasets keep a row
// for every (period, region) pair regardless.
//
// # Ordering
//
// Datasets are sorted by period start, then by the catalog order of the
// region. Catalog order is the order of the regions file and is stable across
// runs, which makes exports byte-for-byte reproducible.
package domain
