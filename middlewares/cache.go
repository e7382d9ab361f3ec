package middlewares

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"eventide/utils"
)

var errStaleResponse = errors.New("cache purged during request")

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheKeyFrom names the cache entry for a GET on the event routes. What an
// event response contains depends on who asks, so every key carries the
// subject. Item keys keep the raw event id so writes can purge one event.
// Other requests are not cached and yield "".
func CacheKeyFrom(c *gin.Context) string {
	path := c.FullPath()
	subject := Subject(c)
	if c.Request.Method != http.MethodGet || path == "" || subject == "" {
		return ""
	}

	who := sha1Hex(subject)
	switch {
	case strings.HasSuffix(path, "/events/:id"):
		return utils.ItemCachePrefix + c.Param("id") + ":" + who
	case strings.HasSuffix(path, "/events"):
		return utils.ListCachePrefix + who + ":" + sha1Hex(c.Request.URL.RawQuery)
	default:
		return ""
	}
}

// ResponseCache serves repeated event reads from Redis. Only 2xx responses
// are stored; a Redis failure falls through to the handler. A response is
// not stored when any purge ran while the handler was building it.
func ResponseCache(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CacheKeyFrom(c)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if b, err := rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedBody
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				c.Abort()
				return
			}
		}

		gen, genErr := utils.CacheGeneration(ctx, rdb)

		bw := &bufferedWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = bw
		c.Writer.Header().Set("X-Cache", "MISS")

		c.Next()

		if genErr != nil || bw.Status() < 200 || bw.Status() >= 300 {
			return
		}
		header := bw.Header().Clone()
		header.Del("X-Cache")
		header.Del("X-Quota-Used")

		var o bytes.Buffer
		if err := gob.NewEncoder(&o).Encode(cachedBody{Status: bw.Status(), Header: header, Body: bw.buf.Bytes()}); err != nil {
			return
		}

		// WATCH the generation so a purge landing between the check and
		// the SET aborts the write.
		err := rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := utils.CacheGeneration(ctx, tx)
			if err != nil {
				return err
			}
			if cur != gen {
				return errStaleResponse
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, o.Bytes(), ttl)
				return nil
			})
			return err
		}, utils.CacheGenerationKey)
		switch {
		case err == nil:
		case errors.Is(err, errStaleResponse), errors.Is(err, redis.TxFailedErr):
			slog.Debug("response cache write skipped", slog.String("key", key))
		default:
			slog.Warn("response cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
