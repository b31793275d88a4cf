package middleware

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Protected verifies the HS256 bearer token and stores it under Locals("user").
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Missing or malformed JWT", "statusCode": fiber.StatusBadRequest,
		})
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false, "message": "Invalid or expired JWT", "statusCode": fiber.StatusUnauthorized,
	})
}

// Claims are the fields this service reads from a verified token.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

var errNoClaims = errors.New("no authenticated user")

// CurrentUser reads the claims Protected left on the context.
func CurrentUser(c *fiber.Ctx) (Claims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return Claims{}, errNoClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errNoClaims
	}
	return ParseClaims(claims)
}

func ParseClaims(claims jwt.MapClaims) (Claims, error) {
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid user_id claim: %w", err)
	}
	role, _ := claims["role"].(string)
	return Claims{UserID: id, Role: role}, nil
}

// ParseToken verifies a raw HS256 token outside the HTTP middleware chain.
func ParseToken(secret, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return ParseClaims(claims)
}

func AdminRequired() fiber.Handler {
	return roleRequired(RoleAdmin, "Forbidden: Admin access required")
}

func TeacherRequired() fiber.Handler {
	return roleRequired(RoleTeacher, "Forbidden: Teacher access required")
}

func roleRequired(role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "message": "Invalid or expired JWT", "statusCode": fiber.StatusUnauthorized,
			})
		}
		if user.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false, "message": message, "statusCode": fiber.StatusForbidden,
			})
		}
		c.Locals("userID", user.UserID)
		return c.Next()
	}
}
