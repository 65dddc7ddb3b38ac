package job

import (
	"rechargehub/pkg/repository"

	"go.uber.org/fx"
)

var Module = fx.Module("job.service",
	fx.Provide(
		repository.ProvideStore[Job],
		NewService,
	),
)
