// Package api is the REST surface: thin gofiber handlers over
// internal/core's nine top-level operations, one handler per operation,
// following the teacher's own HttpHandlerFunc-per-entity wiring pattern
// generalized from net/http to fiber.
package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/oidf-tools/ofresolve/internal/config"
	"github.com/oidf-tools/ofresolve/internal/core"
	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/ferr"
	"github.com/oidf-tools/ofresolve/internal/fetch"
	"github.com/oidf-tools/ofresolve/internal/graph"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

// New builds the fiber.App serving cfg's operations. Every request
// constructs its own Core (and so its own Fetcher), matching spec.md
// §5's one-client-per-invocation rule.
func New(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Use(requestID)

	app.Get("/entity-configuration", handleEntityConfig(cfg))
	app.Get("/entity-metadata", handleEntityMetadata(cfg))
	app.Get("/entity-jwks", handleEntityJWKS(cfg))
	app.Get("/fetch", handleFetchStatement(cfg))
	app.Get("/list", handleListSubordinates(cfg))
	app.Get("/trust-chains", handleTrustChains(cfg))
	app.Get("/subtree", handleSubtree(cfg))
	app.Get("/discover-ops", handleDiscoverOPs(cfg))
	app.Get("/resolve", handleResolve(cfg))
	return app
}

// requestID attaches a per-request trace id, mirroring the teacher's use
// of structured slog fields for every registered entity/request.
func requestID(c *fiber.Ctx) error {
	c.Locals("request_id", uuid.NewString())
	return c.Next()
}

func newCore(cfg *config.Config) *core.Core {
	return core.New(
		fetch.WithTimeout(cfg.Timeout()),
		fetch.WithInsecureSkipVerify(cfg.HTTP.InsecureSkipVerify),
	)
}

func parseEntityID(c *fiber.Ctx, query string) (entityid.ID, error) {
	raw := c.Query(query)
	if raw == "" {
		return "", ferr.Newf(ferr.InvalidURL, "missing required query parameter %q", query)
	}
	return entityid.Parse(raw)
}

func handleEntityConfig(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		verify := c.QueryBool("verify", true)
		stmt, err := newCore(cfg).GetEntityConfig(c.Context(), id, verify)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(stmt)
	}
}

func handleEntityMetadata(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		verify := c.QueryBool("verify", true)
		md, err := newCore(cfg).GetEntityMetadata(c.Context(), id, verify)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(md)
	}
}

func handleEntityJWKS(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		jwks, err := newCore(cfg).GetEntityJWKS(c.Context(), id)
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(jwks)
	}
}

func handleFetchStatement(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		issuer, err := parseEntityID(c, "issuer_id")
		if err != nil {
			return writeError(c, err)
		}
		stmt, err := newCore(cfg).FetchStatement(c.Context(), id, issuer)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(stmt)
	}
}

func handleListSubordinates(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		filter := endpoints.ListFilter{
			EntityType:  c.Query("entity_type"),
			TrustMarked: c.QueryBool("trust_marked", false),
			TrustMarkID: c.Query("trust_mark_id"),
		}
		ids, err := newCore(cfg).ListSubordinates(c.Context(), id, filter)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(ids)
	}
}

func handleTrustChains(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		anchors, err := parseAnchors(c, cfg)
		if err != nil {
			return writeError(c, err)
		}
		chains, err := newCore(cfg).GetTrustChains(c.Context(), id, anchors)
		if err != nil {
			return writeError(c, err)
		}
		out, err := graph.ChainsJSON(chains)
		if err != nil {
			return writeError(c, ferr.New(ferr.Malformed, err))
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(out)
	}
}

func handleSubtree(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		root, err := newCore(cfg).Subtree(c.Context(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(root.Serialize())
	}
}

func handleDiscoverOPs(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "relying_party_id")
		if err != nil {
			return writeError(c, err)
		}
		anchors, err := parseAnchors(c, cfg)
		if err != nil {
			return writeError(c, err)
		}
		ops, err := newCore(cfg).DiscoverOPs(c.Context(), id, anchors)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(ops)
	}
}

func handleResolve(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseEntityID(c, "entity_id")
		if err != nil {
			return writeError(c, err)
		}
		anchor, err := parseEntityID(c, "trust_anchor_id")
		if err != nil {
			return writeError(c, err)
		}
		entityType := statement.EntityType(c.Query("type"))
		if entityType == "" {
			return writeError(c, ferr.Newf(ferr.InvalidURL, "missing required query parameter %q", "type"))
		}
		metadata, err := newCore(cfg).Resolve(c.Context(), id, anchor, entityType)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(metadata)
	}
}

// parseAnchors reads repeatable ?anchor=... query parameters, falling
// back to cfg's configured trust anchors when none are given.
func parseAnchors(c *fiber.Ctx, cfg *config.Config) ([]entityid.ID, error) {
	raw := c.Context().QueryArgs().PeekMulti("anchor")
	if len(raw) == 0 {
		return cfg.AnchorIDs()
	}
	ids := make([]entityid.ID, 0, len(raw))
	for _, r := range raw {
		id, err := entityid.Parse(string(r))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeError maps a federation error's Kind to an HTTP status per
// spec.md §6, and falls back to 500 for anything this implementation
// does not yet classify as client error, not-found, or upstream failure.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case ferr.Is(err, ferr.InvalidURL):
		status = fiber.StatusBadRequest
	case ferr.Is(err, ferr.MetadataMissing), ferr.Is(err, ferr.EndpointMissing),
		ferr.Is(err, ferr.NotFederationEntity), ferr.Is(err, ferr.NoChain):
		status = fiber.StatusNotFound
	case ferr.Is(err, ferr.HTTPFailure), ferr.Is(err, ferr.NetworkFailure),
		ferr.Is(err, ferr.Malformed), ferr.Is(err, ferr.MissingClaim),
		ferr.Is(err, ferr.VerificationFailed), ferr.Is(err, ferr.UnknownCriticalExtension):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": strings.TrimSpace(err.Error())})
}
