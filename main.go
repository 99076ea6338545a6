package main

import (
	"context"

	"github.com/rs/zerolog/log"

	adapterx "github.com/retailmesh/agentcore/core/adapter"
	eventx "github.com/retailmesh/agentcore/core/event"
	memoryx "github.com/retailmesh/agentcore/core/memory"
	tierx "github.com/retailmesh/agentcore/core/memory/tier"
	routerx "github.com/retailmesh/agentcore/core/router"
	sagax "github.com/retailmesh/agentcore/core/saga"
	configx "github.com/retailmesh/agentcore/pkg/config"
	logx "github.com/retailmesh/agentcore/pkg/logger"
)

func main() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
	ctx := context.Background()

	hot, err := tierx.NewRedisHot(*configx.MustNew[tierx.RedisHotConfig]("HOT_REDIS"))
	if err != nil {
		log.Fatal().Err(err).Msg("hot tier init failed")
	}
	warm, err := tierx.NewBunWarm(*configx.MustNew[tierx.BunWarmConfig]("WARM_PG"))
	if err != nil {
		log.Fatal().Err(err).Msg("warm tier init failed")
	}
	if err := warm.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("warm tier migration failed")
	}
	cold, err := tierx.NewObjectCold(*configx.MustNew[tierx.ObjectColdConfig]("COLD_STORE"))
	if err != nil {
		log.Fatal().Err(err).Msg("cold tier init failed")
	}

	mem, err := memoryx.NewManager(hot, warm, cold, *configx.MustNew[memoryx.Config]("MEMORY"))
	if err != nil {
		log.Fatal().Err(err).Msg("memory manager init failed")
	}

	fast, err := routerx.NewOpenAITarget(*configx.MustNew[routerx.OpenAITargetConfig]("FAST_MODEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("fast target init failed")
	}
	rich, err := routerx.NewOpenAITarget(*configx.MustNew[routerx.OpenAITargetConfig]("RICH_MODEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("rich target init failed")
	}
	rt, err := routerx.New(fast, rich, *configx.MustNew[routerx.Config]("ROUTER"))
	if err != nil {
		log.Fatal().Err(err).Msg("router init failed")
	}

	eventLog, err := eventx.NewRedisLog(*configx.MustNew[eventx.RedisLogConfig]("EVENT_REDIS"))
	if err != nil {
		log.Fatal().Err(err).Msg("event log init failed")
	}
	pub, err := eventx.NewPublisher(eventLog, *configx.MustNew[eventx.PublisherConfig]("EVENT"))
	if err != nil {
		log.Fatal().Err(err).Msg("publisher init failed")
	}

	registry, err := sagax.NewRegistry(sagax.BuiltinDefinitions()...)
	if err != nil {
		log.Fatal().Err(err).Msg("saga registry init failed")
	}
	coordinator, err := sagax.NewCoordinator(mem, pub, registry, *configx.MustNew[sagax.Config]("SAGA"))
	if err != nil {
		log.Fatal().Err(err).Msg("saga coordinator init failed")
	}

	inventory, err := adapterx.New(*configx.MustNew[adapterx.Config]("INVENTORY_ADAPTER"))
	if err != nil {
		log.Fatal().Err(err).Msg("inventory adapter init failed")
	}
	if err := inventory.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("inventory adapter connect failed")
	}

	_ = rt
	_ = coordinator
	log.Info().Msg("agent core ready")
}
