package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"reading-progress-system/models"
)

// BookshelfClient fetches a user's library snapshot from the bookshelf
// service. Used when a finished-book event arrives without an inline library.
type BookshelfClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewBookshelfClient(baseURL, token string) *BookshelfClient {
	return &BookshelfClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Configured reports whether a bookshelf service endpoint was provided.
func (c *BookshelfClient) Configured() bool {
	return c != nil && c.BaseURL != ""
}

// FetchLibrary calls the bookshelf service for the user's full library.
func (c *BookshelfClient) FetchLibrary(userID string) ([]models.Book, error) {
	reqURL := fmt.Sprintf("%s/s/internal/users/%s/books", c.BaseURL, url.PathEscape(userID))

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token) // Engine → Bookshelf service token

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("BookshelfService library fetch returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("library fetch failed: %d", resp.StatusCode)
	}

	var out struct {
		Books []models.Book `json:"books"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return out.Books, nil
}
