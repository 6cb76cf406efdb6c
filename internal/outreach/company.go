package outreach

// DefaultCompanyDescription is used when the config supplies no company description.
const DefaultCompanyDescription = `### About Us:

AIRRY GARMENTS CO., LTD. is a seasoned garment manufacturer. The company specializes in producing high-quality men's and ladies' suits, blazers, trousers, jackets, coats, and overcoats.

Most of AIRRY's production is destined for European department stores and boutiques, but for the past ten years, AIRRY has supplied designer garments for North and South American clients, replacing their European suppliers with compelling price points and state-of-the-art production and supply chain management capabilities.

AIRRY has one owned factory and two contracted factories with over 1,000 total staff, offering economy of scale and flexibility in production quantity.

### Our Differentiations:

AIRRY is an experienced client-centric garment supplier whose passion for fashion aesthetics runs deep.

We develop trendy new samples every season. Our innovative fabric, colorway and design often provide inspiration to our clients. Our team members possess a sense of style and can offer our clients design support and industry insights when needed.

Unlike most clothing suppliers with a strict minimum order quantity, AIRRY offers quantity flexibility and welcomes special detail or craftsmanship requests. Our manufacturing and supply chain management capabilities can make your design a reality.

## Key Competitive Advantages:

1. 120+ Years of Experience We have specialized in garment production for over two decades and have partnered with clients worldwide.

2. Best Value via Supply Chain Advantage We can get the best prices from fabric and accessory suppliers offering the highest quality goods to deliver maximum value to clients.

3. Comprehensive R&D Capabilities We develop new styles to add to our huge showroom collection every season and show them to our clients. Also, we can quickly fulfill clients' patterns, materials, and sample creation requests.

4. Unmatched Flexibility We accept order quantities from 100 to 10,000+ pieces per style and welcome requests for special garment details.

5. Piece-by-Piece Inspection Before shipments, our dedicated and well-trained Quality Control team inspects every piece of the finished goods.`
