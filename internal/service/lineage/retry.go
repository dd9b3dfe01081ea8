package lineage

import (
	"context"

	"catalog-lineage/internal/domain"
	"catalog-lineage/internal/retry"
)

// retryingReader retries transient store failures at each adapter call.
type retryingReader struct {
	inner  domain.GraphReader
	policy retry.Policy
}

var _ domain.GraphReader = (*retryingReader)(nil)

// NewRetryingReader wraps reader so that every call is retried on
// TransientError according to policy.
func NewRetryingReader(reader domain.GraphReader, policy retry.Policy) domain.GraphReader {
	return &retryingReader{inner: reader, policy: policy}
}

func withRetry[T any](ctx context.Context, p retry.Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	_, err := retry.Do(ctx, p, domain.IsTransient, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (r *retryingReader) GetAsset(ctx context.Context, workspaceID, assetID string) (*domain.Asset, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) (*domain.Asset, error) {
		return r.inner.GetAsset(ctx, workspaceID, assetID)
	})
}

func (r *retryingReader) GetAssets(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Asset, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.Asset, error) {
		return r.inner.GetAssets(ctx, workspaceID, assetIDs)
	})
}

func (r *retryingReader) GetOutgoingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.AssetLink, error) {
		return r.inner.GetOutgoingAssetLinks(ctx, workspaceID, assetID)
	})
}

func (r *retryingReader) GetIncomingAssetLinks(ctx context.Context, workspaceID, assetID string) ([]domain.AssetLink, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.AssetLink, error) {
		return r.inner.GetIncomingAssetLinks(ctx, workspaceID, assetID)
	})
}

func (r *retryingReader) GetAssetLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.AssetLink, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.AssetLink, error) {
		return r.inner.GetAssetLinksBetween(ctx, workspaceID, assetIDs)
	})
}

func (r *retryingReader) GetColumnsOf(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.Column, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.Column, error) {
		return r.inner.GetColumnsOf(ctx, workspaceID, assetIDs)
	})
}

func (r *retryingReader) GetColumnLinksBetween(ctx context.Context, workspaceID string, assetIDs []string) ([]domain.ColumnLink, error) {
	return withRetry(ctx, r.policy, func(ctx context.Context) ([]domain.ColumnLink, error) {
		return r.inner.GetColumnLinksBetween(ctx, workspaceID, assetIDs)
	})
}
