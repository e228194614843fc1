// Package api exposes the HTTP surface. Handlers bind and validate
// requests, call the domain services, and translate the error taxonomy
// into HTTP status codes.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/skilllink/skilllink/internal/admin"
	"github.com/skilllink/skilllink/internal/booking"
	"github.com/skilllink/skilllink/internal/catalog"
	"github.com/skilllink/skilllink/internal/chat"
	"github.com/skilllink/skilllink/internal/identities"
	"github.com/skilllink/skilllink/internal/professional"
	"github.com/skilllink/skilllink/internal/referral"
	"github.com/skilllink/skilllink/internal/review"
	"github.com/skilllink/skilllink/internal/wallet"
)

// Services bundles the domain services the server depends on.
type Services struct {
	Identities    identities.IdentityService
	Wallets       wallet.WalletService
	Bookings      booking.BookingService
	Professionals professional.ProfessionalService
	Referrals     referral.ReferralService
	Reviews       review.ReviewService
	Chats         chat.ChatService
	Catalog       catalog.CatalogService
	Admin         admin.AdminService
}

// Server represents the API server.
type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	svc         Services
	validator   *validator.Validate
	rateLimiter gin.HandlerFunc
}

// NewServer creates a new API server with injected service interfaces.
func NewServer(logger *zap.Logger, svc Services, rateLimit string) *Server {
	server := &Server{
		logger:    logger,
		svc:       svc,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("skilllink-api"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimit == "" {
		rateLimit = "100-M"
	}
	store := memory.NewStore()
	rate, err := limiter.NewRateFromFormatted(rateLimit)
	if err != nil {
		rate, _ = limiter.NewRateFromFormatted("100-M")
	}
	server.rateLimiter = ginlimiter.NewMiddleware(limiter.New(store, rate))

	server.router = router
	server.registerRoutes()
	return server
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal Gin engine for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.healthCheck)

	// Public routes. Professional browsing takes optional auth so the
	// access gate can decide what to redact.
	public := s.router.Group("/api/v1")
	public.Use(s.rateLimiter)
	{
		auth := public.Group("/auth")
		{
			auth.POST("/send-otp", s.sendOTP)
			auth.POST("/verify-otp", s.verifyOTP)
			auth.POST("/google", s.googleLogin)
			auth.POST("/apple", s.appleLogin)
		}

		public.GET("/categories", s.listCategories)
		public.GET("/services", s.listServices)

		browse := public.Group("/professionals")
		browse.Use(s.optionalAuthMiddleware())
		{
			browse.GET("", s.searchProfessionals)
			browse.GET("/:id", s.getProfessional)
			browse.GET("/:id/reviews", s.listReviews)
		}
	}

	// Protected routes require a valid token.
	protected := s.router.Group("/api/v1")
	protected.Use(s.rateLimiter, s.authMiddleware())
	{
		user := protected.Group("/user")
		{
			user.GET("/me", s.me)
			user.PUT("/me", s.updateProfile)
		}

		walletGroup := protected.Group("/wallet")
		{
			walletGroup.GET("", s.getWallet)
			walletGroup.POST("/add-funds", s.addFunds)
			walletGroup.POST("/verify-payment", s.verifyPayment)
			walletGroup.POST("/withdraw", s.withdraw)
		}

		bookings := protected.Group("/bookings")
		{
			bookings.POST("", s.createBooking)
			bookings.GET("", s.listBookings)
			bookings.GET("/:id", s.getBooking)
			bookings.POST("/:id/accept", s.acceptBooking)
			bookings.POST("/:id/reject", s.rejectBooking)
			bookings.PUT("/:id/status", s.updateBookingStatus)
			bookings.POST("/:id/cancel", s.cancelBooking)
		}

		pro := protected.Group("/professionals")
		{
			pro.POST("/register", s.registerProfessional)
			pro.POST("/kyc", s.submitKYC)
			pro.POST("/:id/unlock", s.unlockProfessional)
			pro.GET("/me/dashboard", s.professionalDashboard)
			pro.GET("/me/leads", s.jobLeads)
			pro.GET("/me/bookings", s.professionalBookings)
		}

		protected.POST("/reviews", s.createReview)

		referrals := protected.Group("/referrals")
		{
			referrals.POST("/apply", s.applyReferral)
			referrals.GET("/me", s.myReferrals)
		}

		chatGroup := protected.Group("/chat")
		{
			chatGroup.GET("/rooms", s.listChatRooms)
			chatGroup.GET("/rooms/:roomId", s.openChatRoom)
			chatGroup.POST("/rooms/:roomId/messages", s.sendChatMessage)
		}
	}

	// Admin routes.
	adminGroup := s.router.Group("/api/v1/admin")
	adminGroup.Use(s.rateLimiter, s.authMiddleware(), s.adminMiddleware())
	{
		adminGroup.GET("/dashboard", s.adminDashboard)
		adminGroup.GET("/kyc/pending", s.pendingKYC)
		adminGroup.POST("/kyc/:id/approve", s.approveKYC)
		adminGroup.POST("/kyc/:id/reject", s.rejectKYC)
		adminGroup.GET("/users", s.adminListUsers)
		adminGroup.PUT("/users/:id/active", s.setUserActive)
		adminGroup.GET("/professionals", s.adminListProfessionals)
		adminGroup.GET("/bookings", s.adminListBookings)
		adminGroup.POST("/coupons", s.createCoupon)
		adminGroup.GET("/analytics/revenue", s.revenueAnalytics)
		adminGroup.POST("/categories", s.createCategory)
		adminGroup.PUT("/categories/:id", s.updateCategory)
		adminGroup.POST("/services", s.createService)
		adminGroup.PUT("/services/:id", s.updateService)
	}
}

// healthCheck handles the health check endpoint.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}
