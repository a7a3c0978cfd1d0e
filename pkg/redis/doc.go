// Package redis connects to the Redis server shared by service instances for
// the tenant directory cache.
//
// Connect retries until the server answers a ping; Healthcheck returns a
// probe suitable for readiness endpoints.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	cache := tenant.NewRedisCache(client, "tenant:")
package redis
