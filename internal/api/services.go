package api

// Service accessors group Client methods by resource.

type ProductsService struct{ *Client }

func (c *Client) Products() ProductsService {
	return ProductsService{c}
}
