package api

// Resource is one media item in the managed collection.
// ID and UploadedBy are immutable; Title is the only mutable field.
type Resource struct {
	ID         string `json:"_id"`
	Title      string `json:"title"`
	ImageURL   string `json:"imageUrl"`
	UploadedBy string `json:"uploadedBy"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// Admin is the service's identity record for the authenticated admin.
type Admin struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Credentials is the request body for login and register.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}

// ListResponse is the window the service returns for GET /images.
// Total is the collection-wide count for the current filter, independent
// of how many items this page holds.
type ListResponse struct {
	Images []Resource `json:"images"`
	Total  int        `json:"total"`
}

// UploadResponse is returned by the single-upload endpoint.
type UploadResponse struct {
	Message  string   `json:"message"`
	Resource Resource `json:"resource"`
}

// BulkUploadResponse is returned by the bulk-upload endpoint.
type BulkUploadResponse struct {
	Message   string     `json:"message"`
	Resources []Resource `json:"resources"`
}
