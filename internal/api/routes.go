package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		customers := api.Group("/customers/:customerId")
		customers.GET("/conditions", handler.GetConditions)
		customers.PUT("/conditions", handler.SaveConditions)
		customers.PATCH("/conditions", handler.UpdateConditions)
		customers.POST("/conditions/hearing-sheet", handler.ExtractHearingSheet)
		customers.POST("/conditions/reception", handler.ExtractReception)
		customers.POST("/conditions/negotiation", handler.ExtractNegotiation)
		customers.GET("/matches", handler.GetCustomerMatches)

		api.GET("/properties", handler.GetProperties)
		api.POST("/properties", handler.CreateProperties)
		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/properties/:id/match/:customerId", handler.MatchProperty)

		api.POST("/matching/run", handler.RunMatching)
		api.GET("/matches", handler.GetMatches)
		api.PUT("/matches/:id/assign", handler.AssignMatch)

		api.GET("/telegram/config", handler.GetTelegramConfig)
		api.PUT("/telegram/config", handler.UpdateTelegramConfig)
		api.POST("/telegram/test", handler.TestTelegramConfig)

		api.GET("/area-groups", handler.ListAreaGroups)
		api.PUT("/area-groups/:name", handler.UpsertAreaGroup)
		api.DELETE("/area-groups/:name", handler.DeleteAreaGroup)
	}
}
