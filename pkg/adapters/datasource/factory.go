package datasource

import (
	"context"
	"fmt"

	"github.com/autoinsight/insight-engine/pkg/apperrors"
)

// AdapterFactory creates connection testers from the registry.
type AdapterFactory interface {
	// NewConnectionTester creates a tester for the given datasource type.
	NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct{}

// NewAdapterFactory returns a factory backed by the global registry.
func NewAdapterFactory() AdapterFactory {
	return &registryFactory{}
}

func (f *registryFactory) NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedType, dsType)
	}
	return factory(ctx, config)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
