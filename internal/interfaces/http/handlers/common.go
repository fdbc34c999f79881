// Package handlers implements the BizAtlas HTTP endpoints on gin.  Every
// handler answers with the response envelope and maps AppError codes to
// HTTP status through pkg/errors.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

const (
	defaultLeavesLimit = 10
	maxLeavesLimit     = 500
)

// parsePagination reads limit and offset for cluster leaves.  Missing
// values fall back to the defaults; malformed ones are rejected.
func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit, offset = defaultLeavesLimit, 0
	if v := c.Query("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 || n > maxLeavesLimit {
			return 0, 0, errors.Newf(errors.ErrCodeBadRequest, "limit must be between 1 and %d", maxLeavesLimit).WithDetail("limit=" + v)
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, errors.New(errors.ErrCodeBadRequest, "offset must be a non-negative integer").WithDetail("offset=" + v)
		}
		offset = n
	}
	return limit, offset, nil
}

// clusterIDParam reads the :cid path segment.
func clusterIDParam(c *gin.Context) (int, error) {
	raw := c.Param("cid")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, errors.New(errors.ErrCodeClusterNotFound, "cluster id must be a non-negative integer").WithDetail("cluster_id=" + raw)
	}
	return id, nil
}

// bindError converts a gin binding failure into a COMMON_002 error.
func bindError(err error) error {
	return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request").WithDetail(err.Error())
}

// wantsGeoJSON reports whether the caller asked for format=geojson.
func wantsGeoJSON(c *gin.Context) bool {
	return c.Query("format") == "geojson"
}

//Personal.AI order the ending
