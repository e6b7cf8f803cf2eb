package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/timeledger/internal/auditcontext"
	obscontext "github.com/smallbiznis/timeledger/internal/observability/context"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
)

// Identity is established by the gateway in front of this service, which
// authenticates the session and forwards the active organization and user.
const (
	HeaderOrg  = "X-Org-ID"
	HeaderUser = "X-User-ID"
)

func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := parseHeaderID(c.GetHeader(HeaderOrg))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, ok := parseHeaderID(c.GetHeader(HeaderUser))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		ctx = orgcontext.WithOrgID(ctx, orgID.Int64())
		ctx = orgcontext.WithUserID(ctx, userID.Int64())
		ctx = auditcontext.WithActor(ctx, string(ActorUser), userID.String())
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		ctx = obscontext.WithActor(ctx, string(ActorUser), userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseHeaderID(value string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, false
	}
	return parsed, true
}
