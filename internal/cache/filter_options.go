package cache

import (
	"encoding/json"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"github.com/dlukic/liftlab/internal/dataset"
)

const (
	filterOptionsKey    = "filter-options"
	filterOptionsExpire = 60 * 60 // seconds
)

// FilterOptionsCache keeps the distinct filter values in process
// memory; the distinct scan over the whole dataset is the single most
// requested and most expensive lookup of the dashboard.
type FilterOptionsCache struct {
	cache *freecache.Cache
}

func NewFilterOptionsCache() *FilterOptionsCache {
	megabyte := 1024 * 1024
	return &FilterOptionsCache{
		cache: freecache.NewCache(megabyte),
	}
}

func (c *FilterOptionsCache) Get() *dataset.FilterOptions {
	data, err := c.cache.Get([]byte(filterOptionsKey))
	if err != nil {
		return nil
	}
	var options dataset.FilterOptions
	if err := json.Unmarshal(data, &options); err != nil {
		log.Errorf("unmarshal cached filter options: %s", err)
		return nil
	}
	return &options
}

func (c *FilterOptionsCache) Set(options *dataset.FilterOptions) {
	data, err := json.Marshal(options)
	if err != nil {
		log.Errorf("marshal filter options: %s", err)
		return
	}
	if err := c.cache.Set([]byte(filterOptionsKey), data, filterOptionsExpire); err != nil {
		log.Errorf("cache filter options: %s", err)
	}
}

// Clear drops the cached options, used after a dataset refresh.
func (c *FilterOptionsCache) Clear() {
	c.cache.Del([]byte(filterOptionsKey))
}
