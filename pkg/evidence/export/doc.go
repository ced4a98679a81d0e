// Package export writes evidence records as JSON or CSV.
//
//	exporter, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	return exporter.Export(ctx, records, os.Stdout)
//
// JSON output is always an array. CSV output has one row per record with
// triggered guardrail names joined by ";".
package export
