package main

import (
	"fmt"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

type homeserver struct {
	jwtSecret   string
	syncTimeout time.Duration
}

// mintAccessToken issues the bearer token handed out by login. The client
// never inspects it; JWT just lets handlers validate statelessly.
func (hs *homeserver) mintAccessToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour * 672).Unix(), // 28 days
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(hs.jwtSecret))
}

func (hs *homeserver) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			c.JSON(401, gin.H{"errcode": "M_MISSING_TOKEN", "error": "Missing access token"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(hs.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(401, gin.H{"errcode": "M_UNKNOWN_TOKEN", "error": "Invalid or expired token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(401, gin.H{"errcode": "M_UNKNOWN_TOKEN", "error": "Invalid token claims"})
			c.Abort()
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.JSON(401, gin.H{"errcode": "M_UNKNOWN_TOKEN", "error": "Invalid token subject"})
			c.Abort()
			return
		}

		c.Set("userID", sub)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	userID, _ := c.Get("userID")
	s, _ := userID.(string)
	return s
}
