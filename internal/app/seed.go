package app

import (
	"context"
	"fmt"

	"catalog-lineage/internal/domain"
)

// Demo graph identifiers.
const (
	DemoWorkspace = "demo"
	DemoResource  = "demo_dbt"
)

type reconciler interface {
	ReconcileResource(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconciliationReport, error)
}

// seedDemoGraph loads a small orders pipeline into the demo workspace:
//
//	raw_orders -> stg_orders -> orders -> revenue
//	raw_customers -> stg_customers -> orders
//
// Reconciling is idempotent, so it runs on every start.
func seedDemoGraph(ctx context.Context, r reconciler) error {
	assets := []struct {
		id, kind string
		columns  []string
	}{
		{"raw_orders", "source", []string{"id", "customer_id", "amount"}},
		{"raw_customers", "source", []string{"id", "email"}},
		{"stg_orders", "model", []string{"order_id", "customer_id", "amount"}},
		{"stg_customers", "model", []string{"customer_id", "email"}},
		{"orders", "model", []string{"order_id", "customer_email", "amount"}},
		{"revenue", "metric", []string{"total"}},
	}
	req := domain.ReconcileRequest{WorkspaceID: DemoWorkspace, ResourceID: DemoResource, FullResync: true}
	for _, a := range assets {
		req.Assets = append(req.Assets, domain.Asset{ID: a.id, Name: a.id, Kind: domain.AssetKind(a.kind)})
		for _, c := range a.columns {
			req.Columns = append(req.Columns, domain.Column{AssetID: a.id, ID: c, Name: c})
		}
	}
	for _, l := range [][2]string{
		{"raw_orders", "stg_orders"},
		{"raw_customers", "stg_customers"},
		{"stg_orders", "orders"},
		{"stg_customers", "orders"},
		{"orders", "revenue"},
	} {
		req.AssetLinks = append(req.AssetLinks, domain.AssetLink{SourceAssetID: l[0], TargetAssetID: l[1]})
	}
	for _, l := range [][4]string{
		{"raw_orders", "id", "stg_orders", "order_id"},
		{"raw_orders", "customer_id", "stg_orders", "customer_id"},
		{"raw_orders", "amount", "stg_orders", "amount"},
		{"raw_customers", "id", "stg_customers", "customer_id"},
		{"raw_customers", "email", "stg_customers", "email"},
		{"stg_orders", "order_id", "orders", "order_id"},
		{"stg_orders", "amount", "orders", "amount"},
		{"stg_customers", "email", "orders", "customer_email"},
		{"orders", "amount", "revenue", "total"},
	} {
		req.ColumnLinks = append(req.ColumnLinks, domain.ColumnLink{
			Source: domain.ColumnRef{AssetID: l[0], ColumnID: l[1]},
			Target: domain.ColumnRef{AssetID: l[2], ColumnID: l[3]},
		})
	}

	report, err := r.ReconcileResource(ctx, req)
	if err != nil {
		return err
	}
	if report.Degraded() {
		return fmt.Errorf("demo graph reconciled with %d failures: %v", report.Failed, report.FailedKeys())
	}
	return nil
}
